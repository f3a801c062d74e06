// Package loadio читает запросы на пополнение и пишет ответы
// в формате JSON по одному объекту на строку.
//
// Вход:  {"id":"15887","customer_id":"528","load_amount":"$3318.47","time":"2000-01-01T00:00:00Z"}
// Выход: {"id":"15887","customer_id":"528","accepted":true}
package loadio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/marlonreghert/tryvault-velocity/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrInvalidRequest = errors.New("invalid load request")

// MaxLineSize - предельный размер одного запроса в байтах
const MaxLineSize = 1 << 20

type LoadRequestJSON struct {
	ID         flexString `json:"id"`
	CustomerID flexString `json:"customer_id"`
	LoadAmount flexString `json:"load_amount"`
	Time       string     `json:"time"`
}

// flexString принимает и строку, и число
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	*s = flexString(data)
	return nil
}

// ParseRequest разбирает одну строку входа
func ParseRequest(line []byte) (model.LoadRequest, error) {
	var raw LoadRequestJSON
	if err := json.Unmarshal(line, &raw); err != nil {
		return model.LoadRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(string(raw.ID)), 10, 64)
	if err != nil {
		return model.LoadRequest{}, fmt.Errorf("%w: id: %w", ErrInvalidRequest, err)
	}
	customerID, err := strconv.ParseInt(strings.TrimSpace(string(raw.CustomerID)), 10, 64)
	if err != nil {
		return model.LoadRequest{}, fmt.Errorf("%w: customer_id: %w", ErrInvalidRequest, err)
	}
	amount, err := ParseAmount(string(raw.LoadAmount))
	if err != nil {
		return model.LoadRequest{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw.Time)
	if err != nil {
		return model.LoadRequest{}, fmt.Errorf("%w: time: %w", ErrInvalidRequest, err)
	}

	return model.LoadRequest{
		ID:         id,
		CustomerID: customerID,
		Amount:     amount,
		Time:       t,
	}, nil
}

// ParseAmount разбирает сумму вида "$3318.47" или "3318.47"
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "$")
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: load_amount: %w", ErrInvalidRequest, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: load_amount: negative %s", ErrInvalidRequest, value)
	}
	if !amount.Equal(amount.Truncate(model.AmountScale)) {
		return decimal.Zero, fmt.Errorf("%w: load_amount: fractional cents %s", ErrInvalidRequest, value)
	}
	return amount, nil
}

// MarshalRequest - обратное ParseRequest преобразование
func MarshalRequest(request model.LoadRequest) ([]byte, error) {
	return json.Marshal(LoadRequestJSON{
		ID:         flexString(strconv.FormatInt(request.ID, 10)),
		CustomerID: flexString(strconv.FormatInt(request.CustomerID, 10)),
		LoadAmount: flexString("$" + request.Amount.String()),
		Time:       request.Time.Format(time.RFC3339Nano),
	})
}

type Reader struct {
	scanner *bufio.Scanner
	line    int
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader{scanner: scanner}
}

// Read возвращает следующий запрос или io.EOF. Пустые строки пропускаются.
func (r *Reader) Read() (model.LoadRequest, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		request, err := ParseRequest(line)
		if err != nil {
			return model.LoadRequest{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return request, nil
	}
	if err := r.scanner.Err(); err != nil {
		return model.LoadRequest{}, err
	}
	return model.LoadRequest{}, io.EOF
}

func ReadAll(r io.Reader) ([]model.LoadRequest, error) {
	reader := NewReader(r)
	var requests []model.LoadRequest
	for {
		request, err := reader.Read()
		if err == io.EOF {
			return requests, nil
		}
		if err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
}

// Writer пишет ответы через перевод строки, без перевода строки в конце
type Writer struct {
	w       *bufio.Writer
	written int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(response model.LoadResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	if w.written > 0 {
		if err := w.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	w.written++
	return nil
}

func (w *Writer) Written() int {
	return w.written
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
