// Package batch прогоняет поток запросов через обработчик по одному,
// сохраняя порядок ответов.
package batch

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/marlonreghert/tryvault-velocity/internal/loadio"
	"github.com/marlonreghert/tryvault-velocity/internal/model"
	"github.com/marlonreghert/tryvault-velocity/internal/service"
)

// Processor - service.Service или ProcessorFunc(client.LoadClient.PostLoad)
type Processor interface {
	ProcessLoad(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error)
}

// ProcessorFunc позволяет передать функцию как Processor
type ProcessorFunc func(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error)

func (f ProcessorFunc) ProcessLoad(ctx context.Context, request model.LoadRequest) (model.LoadResponse, bool, error) {
	return f(ctx, request)
}

type Stats struct {
	Read       int
	Responded  int
	Accepted   int
	Duplicates int
	Skipped    int
}

// Run читает запросы из r и пишет ответы в w.
// Некорректные строки и ошибки чтения хранилища пропускают один запрос,
// остальные ошибки прерывают обработку.
func Run(ctx context.Context, p Processor, r io.Reader, w io.Writer, zaplog *zap.Logger) (Stats, error) {
	var stats Stats
	reader := loadio.NewReader(r)
	writer := loadio.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return stats, errors.Join(err, writer.Flush())
		}

		request, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !errors.Is(err, loadio.ErrInvalidRequest) {
				return stats, errors.Join(err, writer.Flush())
			}
			zaplog.Warn("skip invalid load request", zap.Error(err))
			stats.Skipped++
			continue
		}
		stats.Read++

		response, ok, err := p.ProcessLoad(ctx, request)
		if err != nil {
			if !skippable(err) {
				return stats, errors.Join(err, writer.Flush())
			}
			zaplog.Error("skip load request",
				zap.Int64("id", request.ID),
				zap.Int64("customer_id", request.CustomerID),
				zap.Error(err))
			stats.Skipped++
			continue
		}
		if !ok {
			stats.Duplicates++
			continue
		}

		if err := writer.Write(response); err != nil {
			return stats, err
		}
		stats.Responded++
		if response.Accepted {
			stats.Accepted++
		}
	}

	if err := writer.Flush(); err != nil {
		return stats, err
	}
	zaplog.Info("load requests processed",
		zap.Int("read", stats.Read),
		zap.Int("responded", stats.Responded),
		zap.Int("accepted", stats.Accepted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func skippable(err error) bool {
	return errors.Is(err, service.ErrStoreRead) || errors.Is(err, service.ErrInvalidRequest)
}
