// Command dpp-casd serves a CAS backend over gRPC for passport dataset
// storage.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/casconfig"
	"fides.dev/dpp/storage/casregistry"
	"fides.dev/dpp/storage/grpccas"

	_ "fides.dev/dpp/storage/ipfs"
	_ "fides.dev/dpp/storage/localfs"
)

func main() {
	fs := flag.NewFlagSet("dpp-casd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	localfsDir := fs.String("localfs-dir", "", "localfs backend directory")
	ipfsPath := fs.String("ipfs-path", "", "ipfs repo path (IPFS_PATH)")
	configPath := fs.String("cas-config", "", "JSON CAS config file (overrides -backend)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	cas, closeFn, err := openCAS(*configPath, *backend, map[string]string{
		"localfs-dir": *localfsDir,
		"ipfs-path":   *ipfsPath,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	fmt.Fprintf(os.Stderr, "dpp-casd listening on %s\n", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openCAS(configPath, backend string, flags map[string]string) (storage.CAS, func() error, error) {
	if configPath != "" {
		cfg, err := casconfig.LoadFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(casregistry.UsageDaemon, "")
	}
	config := map[string]string{}
	for key, value := range flags {
		if value != "" {
			config[key] = value
		}
	}
	return casregistry.Open(backend, casregistry.UsageDaemon, config)
}
