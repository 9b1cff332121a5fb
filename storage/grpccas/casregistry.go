package grpccas

import (
	"fmt"
	"strconv"
	"time"

	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "grpc",
		Description: "gRPC CAS client (talks to a dataset-store daemon, e.g. dpp-casd)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(config map[string]string) (storage.CAS, func() error, error) {
			target := config["grpc-target"]
			if target == "" {
				return nil, nil, fmt.Errorf("grpccas: missing grpc-target")
			}
			opts := DialOptions{Timeout: 5 * time.Second}
			if v := config["grpc-dial-timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: invalid grpc-dial-timeout: %w", err)
				}
				opts.Timeout = d
			}
			if v := config["grpc-max-msg-bytes"]; v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("grpccas: invalid grpc-max-msg-bytes: %w", err)
				}
				opts.MaxMsgBytes = n
			}
			client, err := Dial(target, opts)
			if err != nil {
				return nil, nil, err
			}
			if v := config["grpc-timeout"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					_ = client.Close()
					return nil, nil, fmt.Errorf("grpccas: invalid grpc-timeout: %w", err)
				}
				client.Timeout = d
			}
			return client, client.Close, nil
		},
	})
}
