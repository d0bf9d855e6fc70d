package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// SubmissionMessage mirrors the consumer's wire format: an agent
// credential plus the submission payload.
type SubmissionMessage struct {
	APIKey         string `json:"api_key"`
	AgentName      string `json:"agent_name"`
	SeasonID       string `json:"season_id"`
	Day            int    `json:"day"`
	QuestID        string `json:"quest_id"`
	MoltbookPostID string `json:"moltbook_post_id"`
	ReceiptURL     string `json:"receipt_url"`
	ContentHash    string `json:"content_hash"`
	PayoutAddress  string `json:"payout_address,omitempty"`
}

var defaultQuests = []string{
	"D1-DEF", "D2-PERM", "D3-TRUSTLESS", "D4-COMP", "D5-NOHUMAN", "D6-USDC", "D7-THESIS",
}

// agentKey is one line of the keys file: agent_name:api_key
type agentKey struct {
	name string
	key  string
}

func loadKeys(path string) ([]agentKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []agentKey
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid line %q, expected agent_name:api_key", line)
		}
		keys = append(keys, agentKey{name: parts[0], key: parts[1]})
	}
	return keys, scanner.Err()
}

func contentHash(postID string) string {
	sum := sha256.Sum256([]byte(postID))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "quest-submissions", "Kafka topic")
	seasonID := flag.String("season", "S1-fxusd-quest-league", "Season ID")
	keysFile := flag.String("keys", "agents.txt", "File with agent_name:api_key lines")
	maxDay := flag.Int("days", 7, "Submit quests for days 1..N")
	questList := flag.String("quests", strings.Join(defaultQuests, ","), "Quest IDs by day (comma-separated)")
	rate := flag.Int("rate", 50, "Submissions per second")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")
	quests := strings.Split(*questList, ",")

	agents, err := loadKeys(*keysFile)
	if err != nil {
		log.Fatalf("Failed to load agent keys: %v", err)
	}
	if len(agents) == 0 {
		log.Fatal("No agent keys loaded")
	}
	if *maxDay > len(quests) {
		log.Fatalf("Need a quest ID per day: have %d quests for %d days", len(quests), *maxDay)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🚀 Quest Submission Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Season:      %s\n", *seasonID)
	fmt.Printf("  Agents:      %d\n", len(agents))
	fmt.Printf("  Days:        1..%d\n", *maxDay)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendMessage := func(msg SubmissionMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		// Key by agent so one agent's submissions stay ordered
		pm := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.AgentName),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- pm:
		case <-done:
		}
	}

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	total := len(agents) * *maxDay
	sent := 0

	fmt.Printf("Submitting %d quest proofs...\n", total)

loop:
	for day := 1; day <= *maxDay; day++ {
		for _, agent := range agents {
			select {
			case <-sigChan:
				fmt.Println("\n\nInterrupted, shutting down...")
				break loop
			case <-ticker.C:
			}

			postID := fmt.Sprintf("%s-d%d-%06d", agent.name, day, rand.Intn(1000000))
			sendMessage(SubmissionMessage{
				APIKey:         agent.key,
				AgentName:      agent.name,
				SeasonID:       *seasonID,
				Day:            day,
				QuestID:        quests[day-1],
				MoltbookPostID: postID,
				ReceiptURL:     "https://www.moltbook.com/p/" + postID,
				ContentHash:    contentHash(postID),
			})
			sent++

			if sent%100 == 0 || sent == total {
				fmt.Printf("\r  Progress: %d/%d submissions", sent, total)
			}
		}
	}

	close(done)
	producer.AsyncClose()
	wg.Wait()
	fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
		atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
