package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/naveenchin/tt-backend/config"
	abiloader "github.com/naveenchin/tt-backend/pkgs/abi"
	"github.com/naveenchin/tt-backend/pkgs/api"
	"github.com/naveenchin/tt-backend/pkgs/chain"
	"github.com/naveenchin/tt-backend/pkgs/contract"
	"github.com/naveenchin/tt-backend/pkgs/events"
	"github.com/naveenchin/tt-backend/pkgs/history"
	"github.com/naveenchin/tt-backend/pkgs/ipfs"
	"github.com/naveenchin/tt-backend/pkgs/media"
	redislib "github.com/naveenchin/tt-backend/pkgs/redis"
	"github.com/naveenchin/tt-backend/pkgs/submission"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Relay owns the long-lived clients and pipelines
type Relay struct {
	eth      *ethclient.Client
	redis    *redis.Client
	pipeline *submission.Pipeline
	server   *api.Server
	addr     string
}

func NewRelay(ctx context.Context, cfg *config.Settings) (*Relay, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	adapter := chain.NewAdapter(eth)

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = adapter.ChainID(ctx); err != nil {
			eth.Close()
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
	}

	signer, err := chain.NewKeySigner(cfg.PrivateKey, chainID)
	if err != nil {
		eth.Close()
		return nil, err
	}

	parsed, err := abiloader.LoadTrackerABI(cfg.ContractABIFile)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to load tracker ABI: %w", err)
	}
	tracker := contract.NewTracker(parsed, cfg.Contract)

	if err := adapter.VerifyContract(ctx, cfg.Contract); err != nil {
		eth.Close()
		return nil, err
	}

	keys := redislib.NewKeyBuilder(cfg.EventsChannelPrefix, cfg.Contract.Hex())

	// Redis is optional: it backs the shared media cache and lifecycle events
	var redisClient *redis.Client
	var sink events.Sink = events.Nop{}
	var publisher *events.Publisher
	if cfg.RedisHost != "" {
		redisOpts := &redis.Options{
			Addr: cfg.RedisAddr(),
			DB:   cfg.RedisDB,
		}
		if password := strings.TrimSpace(cfg.RedisPassword); password != "" {
			redisOpts.Password = password
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Failed to connect to Redis, continuing without it")
			redisClient.Close()
			redisClient = nil
		} else {
			publisher, err = events.NewPublisher(redisClient, keys, 30*24*time.Hour)
			if err != nil {
				redisClient.Close()
				eth.Close()
				return nil, err
			}
			sink = publisher
		}
	}

	var resolver media.Resolver = media.DigestResolver{}
	var ipfsClient *ipfs.Client
	if cfg.IPFSAPIURL != "" {
		client, err := ipfs.NewClient(cfg.IPFSAPIURL)
		if err != nil {
			log.WithError(err).Warn("Failed to create IPFS client, media references will be digests")
		} else {
			if !client.IsAvailable(ctx) {
				log.Warn("IPFS node not reachable yet, media uploads will fail until it is")
			}
			cache, err := media.NewCache(redisClient, keys, cfg.MediaCacheSize, cfg.MediaCacheTTL)
			if err != nil {
				if redisClient != nil {
					redisClient.Close()
				}
				eth.Close()
				return nil, err
			}
			ipfsClient = client
			resolver = media.NewStoreResolver(client, cache).WithSink(sink)
		}
	}

	pipeline := submission.NewPipeline(adapter, tracker, signer, resolver, sink, submission.Config{
		GasBufferPercent:    cfg.GasBufferPercent,
		WaitForConfirmation: cfg.WaitForConfirmation,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		QueueSize:           cfg.SubmitQueueSize,
	})

	reconstructor := history.NewReconstructor(contract.NewReader(tracker, adapter), cfg.HistoryFetchConcurrency, sink)

	server := api.NewServer(pipeline, reconstructor, api.Options{
		SubmitTimeout: cfg.SubmitTimeout + cfg.ConfirmationTimeout,
		ReadTimeout:   cfg.ReadTimeout,
		MaxMediaBytes: cfg.MaxMediaBytes,
		MaxMediaFiles: cfg.MaxMediaFiles,
		Debug:         cfg.DebugMode,
	}).WithChainCheck(func(ctx context.Context) error {
		_, err := adapter.ChainID(ctx)
		return err
	})
	if ipfsClient != nil {
		server.WithMedia(ipfsClient)
	}
	if publisher != nil {
		server.WithIndex(publisher)
	}

	log.WithFields(log.Fields{
		"account":  signer.Address().Hex(),
		"chain_id": chainID.String(),
		"contract": cfg.Contract.Hex(),
		"redis":    redisClient != nil,
		"ipfs":     ipfsClient != nil,
	}).Info("Stage relay initialized")

	return &Relay{
		eth:      eth,
		redis:    redisClient,
		pipeline: pipeline,
		server:   server,
		addr:     fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
	}, nil
}

// Start launches the pipeline and the API server
func (r *Relay) Start() <-chan error {
	r.pipeline.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.server.Start(r.addr)
	}()
	return errCh
}

// Stop shuts the API down, drains queued submissions and closes clients
func (r *Relay) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("API server shutdown incomplete")
	}
	r.pipeline.Stop()

	if r.redis != nil {
		r.redis.Close()
	}
	r.eth.Close()
	log.Info("Stage relay stopped")
}

func main() {
	if err := config.LoadConfig(); err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg := config.SettingsObj

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	relay, err := NewRelay(ctx, cfg)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("Failed to create relay")
	}

	errCh := relay.Start()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}

	relay.Stop()
}
