// paidserver - A demo API server whose premium endpoints are protected by
// x402 payments on Solana.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/x402labs/x402-go/pkg/solana"
	"github.com/x402labs/x402-go/pkg/x402"
	"github.com/x402labs/x402-go/pkg/x402gin"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.SetEnvPrefix("paidserver")
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("payment.network", x402.NetworkDevnet)
	viper.SetDefault("payment.asset_address", x402.USDCDevnetMint)
	viper.SetDefault("payment.amount", "0.10")
	viper.SetDefault("payment.challenge_ttl", "5m")
	viper.SetDefault("solana.confirm_timeout", "60s")
	viper.SetDefault("replay.purge_interval", "1h")
	// Consumed keys must outlive the challenge TTL plus the ledger's
	// replay horizon by a wide margin.
	viper.SetDefault("replay.retention", "24h")

	if err := viper.ReadInConfig(); err != nil {
		log.WithError(err).Warn("no config file found, using defaults and environment")
	}

	paymentAddress := viper.GetString("payment.address")
	if paymentAddress == "" {
		log.Fatal("payment.address is required")
	}

	rpcURL := viper.GetString("solana.rpc_url")
	if rpcURL == "" {
		rpcURL = solana.DefaultRPCURL(viper.GetString("payment.network"))
	}

	processor, err := solana.NewProcessor(solana.ProcessorConfig{
		RPCURL:         rpcURL,
		ConfirmTimeout: viper.GetDuration("solana.confirm_timeout"),
		Logger:         log,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to create payment processor")
	}

	replay, err := buildReplayStore(log)
	if err != nil {
		log.WithError(err).Fatal("failed to create replay store")
	}
	if purger, ok := replay.(x402.ReplayPurger); ok {
		go x402.PurgeReplayStore(context.Background(), purger,
			viper.GetDuration("replay.purge_interval"),
			viper.GetDuration("replay.retention"), log)
	}

	guard, err := x402.NewGuard(x402.GuardConfig{
		PaymentAddress: paymentAddress,
		AssetAddress:   viper.GetString("payment.asset_address"),
		Network:        viper.GetString("payment.network"),
		Amount:         viper.GetString("payment.amount"),
		Description:    "paidserver premium API",
		ChallengeTTL:   viper.GetDuration("payment.challenge_ttl"),
		Logger:         log,
	}, processor, replay)
	if err != nil {
		log.WithError(err).Fatal("invalid payment configuration")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/api/premium", x402gin.PaymentRequired(guard, nil), func(c *gin.Context) {
		auth := x402gin.GetPaymentAuthorization(c)
		c.JSON(http.StatusOK, gin.H{
			"data":    "premium market data",
			"paid_by": auth.PublicKey,
			"served":  time.Now().UTC(),
		})
	})

	router.GET("/api/report", x402gin.PaymentRequired(guard, &x402.EndpointOptions{
		Amount:      "1.00",
		Description: "full analytics report",
	}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "full analytics report"})
	})

	addr := viper.GetString("server.addr")
	log.WithFields(logrus.Fields{
		"addr":            addr,
		"network":         viper.GetString("payment.network"),
		"payment_address": paymentAddress,
		"amount":          viper.GetString("payment.amount"),
	}).Info("paidserver listening")

	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

// buildReplayStore uses MySQL when replay.mysql_dsn is configured so
// several instances share one consumed-proof ledger, and falls back to the
// in-process store otherwise.
func buildReplayStore(log *logrus.Logger) (x402.ReplayStore, error) {
	dsn := viper.GetString("replay.mysql_dsn")
	if dsn == "" {
		log.Info("using in-memory replay store")
		return x402.NewInMemoryReplayStore(), nil
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&x402.ConsumedKey{}); err != nil {
		return nil, err
	}
	log.Info("using mysql replay store")
	return x402.NewGormReplayStore(db), nil
}
