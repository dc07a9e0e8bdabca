package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	notify "github.com/phillip/giftfund-go/notify"
)

type Config struct {
	MongoClient *mongo.Client
	DBName      string
	JWTSecret   string
	Port        string
	Env         string
	Notifier    notify.Notifier
}

// Collection is shorthand for the handlers, which all resolve collections
// through the shared client.
func (c *Config) Collection(name string) *mongo.Collection {
	return c.MongoClient.Database(c.DBName).Collection(name)
}

func Load() (*Config, error) {
	// Try to load env file but don't fail if it's not found
	_ = godotenv.Load(".env")

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
		log.Println("Using default MongoDB URI:", mongoURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Printf("Failed to connect to MongoDB: %v\n", err)
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Printf("Failed to ping MongoDB: %v\n", err)
		return nil, err
	}
	log.Println("Successfully connected to database")

	cfg := &Config{
		MongoClient: client,
		DBName:      getenv("DB_NAME", "giftfund"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Port:        getenv("PORT", "8080"),
		Env:         getenv("APP_ENV", "development"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Notifier = notify.NewKafkaNotifier(strings.Split(brokers, ","))
		log.Println("Notifications publishing to Kafka:", brokers)
	} else {
		cfg.Notifier = notify.NewMongoNotifier(client, cfg.DBName)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
