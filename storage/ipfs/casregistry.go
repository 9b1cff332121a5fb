package ipfs

import (
	"os"

	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Kubo CLI CAS (local IPFS repo, raw blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Open: func(config map[string]string) (storage.CAS, func() error, error) {
			opts := Options{Bin: config["ipfs-bin"]}
			if path := config["ipfs-path"]; path != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+path)
			}
			return New(opts), nil, nil
		},
	})
}
