package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marlonreghert/tryvault-velocity/internal/auth"
	"github.com/marlonreghert/tryvault-velocity/internal/handler/config"
	"github.com/marlonreghert/tryvault-velocity/internal/loadio"
	"github.com/marlonreghert/tryvault-velocity/internal/locker"
	"github.com/marlonreghert/tryvault-velocity/internal/logger"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 10 * time.Second

// Serve работает до отмены контекста, затем останавливает сервер
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(cfg, auth, service, zaplog)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h.newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zaplog.Info("server started", zap.String("addr", cfg.ServerAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zaplog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	auth    auth.Auth
	service service.Service
	limiter *rate.Limiter
	zaplog  *zap.Logger
}

func newHandler(cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	h := &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return h
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/loads", h.wrap(h.PostLoad))
	mux.HandleFunc("GET /api/customers/{id}/usage", h.wrap(h.GetUsage))
	return mux
}

func (h *handler) wrap(fn http.HandlerFunc) http.HandlerFunc {
	return h.rateLimitMdlw(bodyLimitMdlw(logger.RequestLogMdlw(h.auth.Middleware(fn), h.zaplog)))
}

// Тело читается целиком до логирования, поэтому размер ограничиваем заранее
func bodyLimitMdlw(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, loadio.MaxLineSize))
		r.Body.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next(w, r)
	}
}

// Общий для всех клиентов token bucket
func (h *handler) rateLimitMdlw(next http.HandlerFunc) http.HandlerFunc {
	if h.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func (h *handler) PostLoad(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeErrorCode(w, http.StatusBadRequest, model.ErrorCodeInvalidRequest, err)
		return
	}

	request, err := loadio.ParseRequest(body)
	if err != nil {
		h.writeErrorCode(w, http.StatusBadRequest, model.ErrorCodeInvalidRequest, err)
		return
	}

	response, ok, err := h.service.ProcessLoad(r.Context(), request)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// повторный запрос: ответа нет
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, response)
}

type GetUsageJSONResponse struct {
	CustomerID  string    `json:"customer_id"`
	LoadsToday  int64     `json:"loads_today"`
	AmountToday string    `json:"amount_today"`
	AmountWeek  string    `json:"amount_week"`
	DayStart    time.Time `json:"day_start"`
	WeekStart   time.Time `json:"week_start"`
	End         time.Time `json:"end"`
}

func (h *handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	at := time.Now()
	if value := r.URL.Query().Get("time"); value != "" {
		at, err = time.Parse(time.RFC3339, value)
		if err != nil {
			http.Error(w, "invalid time", http.StatusBadRequest)
			return
		}
	}

	usage, err := h.service.GetUsage(r.Context(), customerID, at)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, GetUsageJSONResponse{
		CustomerID:  strconv.FormatInt(usage.CustomerID, 10),
		LoadsToday:  usage.LoadsPerDay,
		AmountToday: usage.AmountDay.StringFixed(2),
		AmountWeek:  usage.AmountWeek.StringFixed(2),
		DayStart:    usage.DayStart,
		WeekStart:   usage.WeekStart,
		End:         usage.End,
	})
}

// writeError отвечает кодом ошибки, по которому клиент решает,
// пропустить запрос или прервать обработку
func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.writeErrorCode(w, http.StatusBadRequest, model.ErrorCodeInvalidRequest, err)
	case errors.Is(err, locker.ErrNotAcquired):
		h.writeErrorCode(w, http.StatusServiceUnavailable, model.ErrorCodeLockTimeout, err)
	case errors.Is(err, service.ErrStoreRead):
		h.zaplog.Error("store read", zap.Error(err))
		h.writeErrorCode(w, http.StatusInternalServerError, model.ErrorCodeStoreRead, err)
	default:
		h.zaplog.Error("internal error", zap.Error(err))
		h.writeErrorCode(w, http.StatusInternalServerError, model.ErrorCodeInternal, err)
	}
}

func (h *handler) writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	responseJSON, marshalErr := json.Marshal(model.ErrorResponse{Code: code, Error: err.Error()})
	if marshalErr != nil {
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseJSON)
}
