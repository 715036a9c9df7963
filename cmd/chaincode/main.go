// Command chaincode runs the rotrust contract on a Hyperledger Fabric peer.
//
// With CHAINCODE_SERVER_ADDRESS set, it runs as an external chaincode
// service; otherwise the peer launches and connects to it.
package main

import (
	"os"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"rotrust/internal/chaincode"
	"rotrust/internal/platform/config"
	"rotrust/internal/platform/logger"
)

func main() {
	cfg, err := config.FromEnv()
	log := logger.New(cfg.Log)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	policy, err := cfg.Escrow.Policy()
	if err != nil {
		log.Error("invalid readiness policy", "error", err)
		os.Exit(1)
	}

	cc, err := chaincode.NewChaincode(
		chaincode.WithReadinessPolicy(policy),
		chaincode.WithLogger(log),
	)
	if err != nil {
		log.Error("build chaincode", "error", err)
		os.Exit(1)
	}

	if addr := os.Getenv("CHAINCODE_SERVER_ADDRESS"); addr != "" {
		server := &shim.ChaincodeServer{
			CCID:    os.Getenv("CHAINCODE_ID"),
			Address: addr,
			CC:      cc,
			TLSProps: shim.TLSProperties{
				Disabled: true,
			},
		}
		log.Info("starting chaincode service", "addr", addr, "readiness_policy", string(policy))
		if err := server.Start(); err != nil {
			log.Error("chaincode service stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	log.Info("starting chaincode", "readiness_policy", string(policy))
	if err := cc.Start(); err != nil {
		log.Error("chaincode stopped", "error", err)
		os.Exit(1)
	}
}
