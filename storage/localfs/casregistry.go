package localfs

import (
	"fmt"

	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem CAS (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(config map[string]string) (storage.CAS, func() error, error) {
			dir := config["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing localfs-dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}
