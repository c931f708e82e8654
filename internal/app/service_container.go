package app

import (
	"fmt"
	"log"
	"sync"

	"tasset-backend/internal/clients"
	"tasset-backend/internal/config"
	"tasset-backend/internal/db"
	"tasset-backend/internal/repository"
	"tasset-backend/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires repositories, clients and services once at startup
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	MintRepo   repository.MintRequestRepository
	RedeemRepo repository.RedeemRequestRepository

	// External clients
	ProverClient   *clients.ProverClient
	VerifierClient *clients.UTXOVerifierClient
	NATSClient     *clients.NATSClient

	// Core services
	ContractService   *services.ContractService
	MintService       *services.MintService
	RedeemService     *services.RedeemService
	SettlementService *services.SettlementService
	PushService       *services.PushService

	Logger *logrus.Logger
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container exactly once
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing service container...")

		container := &ServiceContainer{
			DB:     db.DB,
			Logger: logrus.New(),
		}

		container.MintRepo = repository.NewMintRequestRepository(container.DB)
		container.RedeemRepo = repository.NewRedeemRequestRepository(container.DB)

		container.ProverClient = clients.NewProverClient(config.AppConfig.Prover.BaseURL)
		container.VerifierClient = clients.NewUTXOVerifierClient(config.AppConfig.Verifier.BaseURL)

		// NATS is best-effort: lifecycle events are a convenience stream, the
		// database rows are the source of truth.
		if config.AppConfig != nil && config.AppConfig.NATS.URL != "" {
			natsClient, err := clients.NewNATSClient(config.AppConfig.NATS.URL)
			if err != nil {
				log.Printf("⚠️ NATS unavailable, lifecycle events disabled: %v", err)
			} else {
				container.NATSClient = natsClient
			}
		}

		contractService, err := services.NewContractService()
		if err != nil {
			initErr = fmt.Errorf("failed to create contract service: %w", err)
			return
		}
		if err := contractService.InitializeClients(); err != nil {
			initErr = fmt.Errorf("failed to initialize blockchain clients: %w", err)
			return
		}
		container.ContractService = contractService

		container.PushService = services.NewPushService()

		// NATSClient may be nil; passing a nil interface through requires the
		// explicit check because a typed nil would not compare equal to nil.
		var events services.EventPublisher
		var subscriber services.EventSubscriber
		if container.NATSClient != nil {
			events = container.NATSClient
			subscriber = container.NATSClient
		}

		container.MintService = services.NewMintService(
			container.MintRepo,
			container.ProverClient,
			container.VerifierClient,
			container.ContractService,
			events,
			container.PushService,
			container.Logger,
		)
		container.RedeemService = services.NewRedeemService(
			container.RedeemRepo,
			container.MintRepo,
			events,
			container.PushService,
			container.Logger,
		)
		container.SettlementService = services.NewSettlementService(
			container.RedeemService,
			subscriber,
			container.Logger,
		)

		Container = container
		log.Println("✅ Service container initialized")
	})

	if initErr != nil {
		return nil, initErr
	}
	return Container, nil
}

// Shutdown releases the container's external resources
func (c *ServiceContainer) Shutdown() {
	if c.SettlementService != nil {
		c.SettlementService.Stop()
	}
	if c.PushService != nil {
		c.PushService.CloseAll()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	log.Println("✅ Service container shut down")
}
