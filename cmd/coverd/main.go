package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"droughtcover/config"
	"droughtcover/core"
	"droughtcover/core/events"
	"droughtcover/core/types"
	gwconfig "droughtcover/gateway/config"
	"droughtcover/gateway/routes"
	"droughtcover/native/cover"
	"droughtcover/observability"
	"droughtcover/observability/logging"
	"droughtcover/oracle"
	"droughtcover/rpc"
	"droughtcover/storage"
)

func main() {
	var (
		configPath  = flag.String("config", "./config.toml", "path to the coverd config file")
		gatewayPath = flag.String("gateway-config", "", "optional path to the gateway config file")
		env         = flag.String("env", "local", "deployment environment tag for log lines")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithFile("coverd", *env, logging.FileOptions{Path: cfg.LogFile})
	logger.Info("starting coverd", "network", cfg.NetworkName, "dataDir", cfg.DataDir)

	owner, err := cfg.Owner()
	if err != nil {
		logger.Error("invalid owner address", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "cover"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var source cover.RainfallSource
	if cfg.OracleEndpoint != "" {
		client, err := oracle.NewClient(cfg.OracleEndpoint)
		if err != nil {
			logger.Error("failed to configure oracle client", "error", err)
			os.Exit(1)
		}
		source = client
		logger.Info("oracle client configured", "endpoint", cfg.OracleEndpoint)
	} else {
		logger.Warn("no oracle endpoint configured; verified settlement is unavailable")
	}

	node := core.NewNode(db, owner.Array(), source)
	node.SetEventEmitter(&logEmitter{logger: logger})

	gwCfg, err := gwconfig.Load(*gatewayPath)
	if err != nil {
		logger.Error("failed to load gateway config", "path", *gatewayPath, "error", err)
		os.Exit(1)
	}
	gatewayAddr := cfg.GatewayAddress
	if gwCfg.ListenAddress != "" {
		gatewayAddr = gwCfg.ListenAddress
	}
	go func() {
		logger.Info("starting gateway", "address", gatewayAddr)
		if err := http.ListenAndServe(gatewayAddr, routes.New(node, gwCfg)); err != nil {
			logger.Error("gateway stopped", "error", err)
			os.Exit(1)
		}
	}()

	server := rpc.NewServer(node)
	logger.Info("starting JSON-RPC server", "address", cfg.RPCAddress)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

// logEmitter forwards engine events to the structured logger and counts
// terminal settlements.
type logEmitter struct {
	logger *slog.Logger
}

func (l *logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{"event", evt.EventType()}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			if id, ok := payload.Attributes["id"]; ok {
				attrs = append(attrs, "policyId", id)
			}
			if status, ok := payload.Attributes["status"]; ok {
				attrs = append(attrs, "status", status)
			}
			if evt.EventType() == cover.EventTypePolicySettled {
				result := payload.Attributes["result"]
				attrs = append(attrs, "result", result)
				observability.Metrics().ObserveSettlement(result)
			}
		}
	}
	l.logger.Info("policy event", attrs...)
}
