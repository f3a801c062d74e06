package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/marlonreghert/tryvault-velocity/internal/loadio"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadClient отправляет запросы на пополнение удаленному серверу
type LoadClient interface {
	PostLoad(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error)
}

type loadClient struct {
	client *resty.Client
}

func NewLoadClient(serviceAddr string, token string) LoadClient {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return loadClient{client: client}
}

// PostLoad возвращает ok == false для повторного запроса
func (c loadClient) PostLoad(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error) {
	path := "/api/loads"

	body, err := loadio.MarshalRequest(request)
	if err != nil {
		return model.LoadResponse{}, false, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return model.LoadResponse{}, false, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var response model.LoadResponse
		err = json.Unmarshal(resp.Body(), &response)
		return response, err == nil, err
	case http.StatusNoContent:
		return model.LoadResponse{}, false, nil
	default:
		return model.LoadResponse{}, false, statusError(resp)
	}
}

// statusError сохраняет ошибки сервиса, чтобы errors.Is работал
// так же, как при локальной обработке
func statusError(resp *resty.Response) error {
	var body model.ErrorResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || body.Code == "" {
		if resp.StatusCode() == http.StatusBadRequest {
			return fmt.Errorf("%w: status %d: %s", service.ErrInvalidRequest, resp.StatusCode(), resp.String())
		}
		return fmt.Errorf("load request status: %d: %s", resp.StatusCode(), resp.String())
	}

	switch body.Code {
	case model.ErrorCodeStoreRead:
		return fmt.Errorf("%w: status %d: %s", service.ErrStoreRead, resp.StatusCode(), body.Error)
	case model.ErrorCodeInvalidRequest:
		return fmt.Errorf("%w: status %d: %s", service.ErrInvalidRequest, resp.StatusCode(), body.Error)
	default:
		return fmt.Errorf("load request status: %d: %s: %s", resp.StatusCode(), body.Code, body.Error)
	}
}
