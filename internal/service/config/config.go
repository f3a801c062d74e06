package config

import "github.com/marlonreghert/tryvault-velocity/internal/model"

type Config struct {
	Limits model.Limits
}
