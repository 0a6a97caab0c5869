package utils

import (
	"context"

	"github.com/agnosticeng/cnf"
	"github.com/agnosticeng/cnf/providers/env"
	"github.com/agnosticeng/objstr"
	objstrutils "github.com/agnosticeng/objstr/utils"
)

// LoadConfig fills dst from the config file at path (any objstr location),
// then from AGN_* environment variables. An empty path only reads the environment.
func LoadConfig(ctx context.Context, path string, dst any) error {
	if len(path) == 0 {
		return cnf.Load(dst, cnf.WithProvider(env.NewEnvProvider("AGN")))
	}

	return cnf.Load(
		dst,
		cnf.WithProvider(objstrutils.NewCnfProvider(objstr.FromContextOrDefault(ctx), path)),
		cnf.WithProvider(env.NewEnvProvider("AGN")),
	)
}
