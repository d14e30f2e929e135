package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dukamart/dukapay-gobackend/internal/config"
	"github.com/dukamart/dukapay-gobackend/internal/db"
	"github.com/dukamart/dukapay-gobackend/internal/handlers"
	"github.com/dukamart/dukapay-gobackend/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to MongoDB
	client, err := db.Connect(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	database := client.Database("dukapaydb")
	jwtSecret := []byte(cfg.JWTSecret)

	// Initialize services and handlers
	store := services.NewMongoTransactionStore(database)
	gateway := services.NewDarajaClient(services.DarajaConfig{
		BaseURL:        cfg.MpesaBaseURL,
		ConsumerKey:    cfg.MpesaConsumerKey,
		ConsumerSecret: cfg.MpesaConsumerSecret,
		ShortCode:      cfg.MpesaShortCode,
		Passkey:        cfg.MpesaPasskey,
		PartyB:         cfg.MpesaPartyB,
		CallbackURL:    cfg.MpesaCallbackURL,
	})
	paymentService := services.NewPaymentService(gateway, store)
	paymentHandler := handlers.NewPaymentHandler(paymentService, jwtSecret)

	userService := services.NewUserService(database)
	userHandler := handlers.NewUserHandler(userService, jwtSecret)

	faqService := services.NewFAQService(database)
	faqHandler := handlers.NewFAQHandler(faqService, jwtSecret)

	assistantService := services.NewAssistantService(faqService, cfg.GroqBaseURL, cfg.GroqAPIKey)
	assistantHandler := handlers.NewAssistantHandler(assistantService)

	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureIndexes(indexCtx); err != nil {
		log.Fatalf("Failed to create transaction indexes: %v", err)
	}
	if err := userService.EnsureIndexes(indexCtx); err != nil {
		log.Fatalf("Failed to create user indexes: %v", err)
	}

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/user", userHandler.CreateUser).Methods("POST")
	router.HandleFunc("/api/user", userHandler.GetUsers).Methods("GET")
	router.HandleFunc("/api/login", userHandler.LoginUserHandler).Methods("POST")
	router.HandleFunc("/api/me", userHandler.Profile).Methods("GET")

	router.HandleFunc("/api/payment", paymentHandler.InitiatePayment).Methods("POST")
	router.HandleFunc("/api/payment/callback", paymentHandler.Callback).Methods("POST")
	router.HandleFunc("/api/payments", paymentHandler.GetPayments).Methods("GET")
	router.HandleFunc("/api/payments/pending", paymentHandler.GetStalePayments).Methods("GET")
	router.HandleFunc("/api/payment/{checkoutRequestID}", paymentHandler.GetPaymentStatus).Methods("GET")

	router.HandleFunc("/api/faq", faqHandler.CreateFAQ).Methods("POST")
	router.HandleFunc("/api/faqs", faqHandler.GetFAQs).Methods("GET")
	router.HandleFunc("/api/faq/{faqID}", faqHandler.GetFAQ).Methods("GET")
	router.HandleFunc("/api/faq/{faqID}", faqHandler.UpdateFAQ).Methods("PATCH")
	router.HandleFunc("/api/faq/{faqID}", faqHandler.DeleteFAQ).Methods("DELETE")

	router.HandleFunc("/api/chatbot/ask", assistantHandler.Ask).Methods("POST")

	// Start server
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Server running on port %s", cfg.Port)
	log.Fatal(server.ListenAndServe())
}
