package main

import (
	"fmt"
	"os"
	"os/exec"
)

// Starts the backing services for local development. Run with: go run scripts/setup-dev.go
func main() {
	fmt.Println("🚀 Setting up Vender Development Environment")

	if err := checkDocker(); err != nil {
		fmt.Printf("⚠️  Docker issue detected: %v\n", err)
		fmt.Println("💡 You can still run without Docker: DB_DRIVER=sqlite KAFKA_ENABLED=false")
		return
	}

	fmt.Println("✅ Docker is running")
	fmt.Println("🐳 Starting MySQL, Redis and Kafka...")

	cmd := exec.Command("docker-compose", "up", "-d", "mysql", "redis", "kafka")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Printf("❌ Failed to start services: %v\n", err)
		return
	}

	fmt.Println("✅ Services started successfully!")
	fmt.Println("🗄  Apply the schema: go run ./cmd/ticketctl migrate")
	fmt.Println("🎯 Then run: go run .")
}

func checkDocker() error {
	return exec.Command("docker", "info").Run()
}
