package main

import (
	"context"
	"log"

	api "github.com/hykura/mailmind/cmd/api"
	chatDelivery "github.com/hykura/mailmind/internal/chat/delivery"
	chatdomain "github.com/hykura/mailmind/internal/chat/domain"
	chatRepo "github.com/hykura/mailmind/internal/chat/repository"
	chatUsecase "github.com/hykura/mailmind/internal/chat/usecase"
	emailDelivery "github.com/hykura/mailmind/internal/email/delivery"
	emaildomain "github.com/hykura/mailmind/internal/email/domain"
	emailRepo "github.com/hykura/mailmind/internal/email/repository"
	emailUsecase "github.com/hykura/mailmind/internal/email/usecase"
	ingestDelivery "github.com/hykura/mailmind/internal/ingest/delivery"
	ingestUsecase "github.com/hykura/mailmind/internal/ingest/usecase"
	promptDelivery "github.com/hykura/mailmind/internal/prompt/delivery"
	promptdomain "github.com/hykura/mailmind/internal/prompt/domain"
	promptRepo "github.com/hykura/mailmind/internal/prompt/repository"
	syncDelivery "github.com/hykura/mailmind/internal/sync/delivery"
	syncdomain "github.com/hykura/mailmind/internal/sync/domain"
	syncRepo "github.com/hykura/mailmind/internal/sync/repository"
	syncUsecase "github.com/hykura/mailmind/internal/sync/usecase"
	"github.com/hykura/mailmind/pkg/chroma"
	"github.com/hykura/mailmind/pkg/config"
	"github.com/hykura/mailmind/pkg/database"
	"github.com/hykura/mailmind/pkg/gmail"
	"github.com/hykura/mailmind/pkg/llm"
)

func main() {
	cfg := config.Load()

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&emaildomain.Email{},
		&syncdomain.SyncState{},
		&syncdomain.Credential{},
		&promptdomain.Template{},
		&chatdomain.Session{},
		&chatdomain.Turn{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	emailRepository := emailRepo.NewGormEmailRepository(db)
	syncStateRepository := syncRepo.NewGormSyncStateRepository(db)
	credentialRepository := syncRepo.NewGormCredentialRepository(db)
	sessionRepository := chatRepo.NewGormSessionRepository(db)
	templateRepository, err := promptRepo.NewGormTemplateRepository(db)
	if err != nil {
		log.Fatal("Failed to initialize prompt templates:", err)
	}

	completer, err := llm.NewCompleter(cfg)
	if err != nil {
		log.Fatal("Failed to initialize LLM backend:", err)
	}
	log.Printf("LLM backend: %s", completer.Name())

	vectorStore, err := chroma.NewClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Chroma:", err)
	}

	gmailClient := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret)

	emailUc := emailUsecase.NewEmailUsecase(emailRepository)
	syncer := syncUsecase.NewSyncer(emailRepository, syncStateRepository, credentialRepository, gmailClient, vectorStore, cfg)
	pipeline := ingestUsecase.NewPipeline(emailRepository, templateRepository, completer, vectorStore)
	sessions := chatUsecase.NewSessionManager(sessionRepository)
	contextBuilder := chatUsecase.NewContextBuilder(emailRepository, vectorStore, cfg)
	chatUc := chatUsecase.NewChatUsecase(contextBuilder, sessions, completer)

	// Seed the local corpus so the system is usable before any account is
	// connected.
	if _, err := emailUc.LoadLocalInbox(cfg.LocalInboxFile); err != nil {
		log.Printf("Warning: failed to load local inbox: %v", err)
	}

	go syncer.RunInterval(context.Background())

	handlers := &api.Handlers{
		Email:    emailDelivery.NewEmailHandler(emailUc, emailRepository, syncer, cfg.LocalInboxFile),
		Sync:     syncDelivery.NewSyncHandler(syncer, gmailClient),
		Ingest:   ingestDelivery.NewIngestHandler(pipeline, syncer, vectorStore),
		Chat:     chatDelivery.NewChatHandler(chatUc, sessions, syncer),
		Prompt:   promptDelivery.NewTemplateHandler(templateRepository),
		Settings: api.NewSettingsHandler(cfg, completer),
	}

	server := api.NewServer(handlers)
	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
