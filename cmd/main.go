package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/agrilink/agrilink-gobackend/internal/db"
	"github.com/agrilink/agrilink-gobackend/internal/handlers"
	"github.com/agrilink/agrilink-gobackend/internal/momo"
	"github.com/agrilink/agrilink-gobackend/internal/payment"
	"github.com/agrilink/agrilink-gobackend/internal/services"
)

func main() {
	// Load .env
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Error loading .env: %s", err)
	}

	// Connect to MongoDB
	uri := os.Getenv("MONGOURI")
	if uri == "" {
		log.Fatal("MONGOURI environment variable not set")
	}
	client, err := db.Connect(uri)
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

	database := client.Database("agrilinkdb")

	// Mobile-money provider client
	momoClient, err := momo.NewClientFromEnv(nil)
	if err != nil {
		log.Fatalf("Failed to configure momo client: %v", err)
	}

	// Optional Kafka producer for settlement events
	var events *payment.EventPublisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		producer, err := initKafkaProducer(strings.Split(brokers, ","))
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer producer.Close()
		events = payment.NewEventPublisher(producer, "payment_settlements")
	}

	// Initialize services and handlers
	auth := handlers.NewAuthMiddleware(os.Getenv("JWT_SECRET"))

	userService := services.NewUserService(database)
	userHandler := handlers.NewUserHandler(userService, auth)

	productService := services.NewProductService(database)
	productHandler := handlers.NewProductHandler(productService)

	orderService := services.NewOrderService(database)
	orderHandler := handlers.NewOrderHandler(orderService)

	favoriteService := services.NewFavoriteService(database)
	favoriteHandler := handlers.NewFavoriteHandler(favoriteService)

	paymentService := services.NewPaymentService(database, momoClient.Currency())
	if err := paymentService.EnsureIndexes(context.Background()); err != nil {
		log.Printf("Warning: failed to ensure payment indexes: %v", err)
	}

	orchestrator := payment.NewOrchestrator(
		momoClient,
		payment.WithSandbox(os.Getenv("MOMO_ENVIRONMENT") != "production"),
		payment.WithApproveAfter(envInt("MOMO_AUTO_APPROVE_AFTER", 0)),
		payment.WithRecorder(paymentService),
		payment.WithEventPublisher(events),
	)
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	paymentRecordsHandler := handlers.NewPaymentRecordsHandler(paymentService)

	// Set up router
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/user", userHandler.CreateUser).Methods("POST")
	router.HandleFunc("/api/user", auth.Require(userHandler.GetUsers)).Methods("GET")
	router.HandleFunc("/api/user/me", auth.Require(userHandler.GetMe)).Methods("GET")
	router.HandleFunc("/api/login", userHandler.LoginUserHandler).Methods("POST")

	router.HandleFunc("/api/product", auth.RequireRole("farmer", productHandler.CreateProduct)).Methods("POST")
	router.HandleFunc("/api/products", productHandler.GetProducts).Methods("GET")
	router.HandleFunc("/api/product/{productID}", productHandler.GetProduct).Methods("GET")
	router.HandleFunc("/api/product/{productID}", auth.RequireRole("farmer", productHandler.UpdateProduct)).Methods("PATCH")
	router.HandleFunc("/api/product/{productID}", auth.RequireRole("farmer", productHandler.DeleteProduct)).Methods("DELETE")

	router.HandleFunc("/api/order", auth.Require(orderHandler.CreateOrder)).Methods("POST")
	router.HandleFunc("/api/orders", auth.Require(orderHandler.GetOrders)).Methods("GET")
	router.HandleFunc("/api/order/{orderID}", auth.Require(orderHandler.GetOrder)).Methods("GET")

	router.HandleFunc("/api/favorite", auth.Require(favoriteHandler.AddFavorite)).Methods("POST")
	router.HandleFunc("/api/favorite/{productID}", auth.Require(favoriteHandler.RemoveFavorite)).Methods("DELETE")
	router.HandleFunc("/api/favorites", auth.Require(favoriteHandler.GetFavorites)).Methods("GET")

	router.HandleFunc("/api/payment/initiate", auth.RequireRole("customer", paymentHandler.InitiatePayment)).Methods("POST")
	router.HandleFunc("/api/payment/status/{referenceId}", auth.Require(paymentHandler.GetPaymentStatus)).Methods("GET")
	router.HandleFunc("/api/payment/callback", paymentHandler.PaymentCallback).Methods("POST")

	router.HandleFunc("/api/payments", auth.RequireRole("farmer", paymentRecordsHandler.GetPayments)).Methods("GET")
	router.HandleFunc("/api/payments/{referenceId}", auth.Require(paymentRecordsHandler.GetPayment)).Methods("GET")

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("Server running on port %s", port)
	log.Fatal(server.ListenAndServe())
}

func initKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	log.Println("Kafka producer initialized successfully")
	return producer, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using default", key, v)
		return fallback
	}
	return n
}
