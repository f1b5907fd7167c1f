package tron

import (
	"fmt"
	"time"
)

type Network string

const (
	Mainnet Network = "mainnet"
	Nile    Network = "nile"
	Shasta  Network = "shasta"
)

type networkInfo struct {
	grpc     string
	grid     string
	usdt     string
	explorer string
}

var networks = map[Network]networkInfo{
	Mainnet: {
		grpc:     "grpc.trongrid.io:50051",
		grid:     "https://api.trongrid.io",
		usdt:     "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
		explorer: "https://tronscan.org/#/transaction/",
	},
	Nile: {
		grpc:     "grpc.nile.trongrid.io:50051",
		grid:     "https://nile.trongrid.io",
		usdt:     "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf",
		explorer: "https://nile.tronscan.org/#/transaction/",
	},
	Shasta: {
		grpc:     "grpc.shasta.trongrid.io:50051",
		grid:     "https://api.shasta.trongrid.io",
		usdt:     "TG3XXyExBkPp9nzdajDZsozEu4BkaSJozs",
		explorer: "https://shasta.tronscan.org/#/transaction/",
	},
}

// Config selects a network; any explicit field overrides the network default.
type Config struct {
	Network      string        `mapstructure:"network"`
	GrpcURL      string        `mapstructure:"grpc_url"`
	GridURL      string        `mapstructure:"grid_url"`
	APIKey       string        `mapstructure:"api_key"`
	USDTContract string        `mapstructure:"usdt_contract"`
	ExplorerURL  string        `mapstructure:"explorer_url"`
	FeeLimit     int64         `mapstructure:"fee_limit"` // sun
	Timeout      time.Duration `mapstructure:"timeout"`
}

// resolve fills unset fields from the network table.
func (c Config) resolve() (Config, error) {
	if c.Network == "" {
		c.Network = string(Mainnet)
	}
	info, ok := networks[Network(c.Network)]
	if !ok {
		return c, fmt.Errorf("unknown tron network %q", c.Network)
	}
	if c.GrpcURL == "" {
		c.GrpcURL = info.grpc
	}
	if c.GridURL == "" {
		c.GridURL = info.grid
	}
	if c.USDTContract == "" {
		c.USDTContract = info.usdt
	}
	if c.ExplorerURL == "" {
		c.ExplorerURL = info.explorer
	}
	if c.FeeLimit <= 0 {
		c.FeeLimit = 100_000_000
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c, nil
}
