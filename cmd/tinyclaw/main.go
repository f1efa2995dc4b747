package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/agent"
	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/channels"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/cron"
	"github.com/tinyclaw-dev/tinyclaw/pkg/devices"
	"github.com/tinyclaw-dev/tinyclaw/pkg/gateway"
	"github.com/tinyclaw-dev/tinyclaw/pkg/heartbeat"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
	"github.com/tinyclaw-dev/tinyclaw/pkg/providers"
	"github.com/tinyclaw-dev/tinyclaw/pkg/utils"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tinyclaw <command> [args]")
		fmt.Println("Commands: agent, gateway, onboard")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "agent":
		runAgent(os.Args[2:])
	case "gateway":
		runGateway(os.Args[2:])
	case "onboard":
		runOnboard()
	case "version":
		fmt.Println("tinyclaw " + version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func loadConfigOrExit(path string) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		fmt.Println("Run 'tinyclaw onboard' to create one.")
		os.Exit(1)
	}
	return cfg
}

// runAgent handles the CLI surface: one-shot with -m, or an interactive
// prompt loop without it.
func runAgent(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	message := fs.String("m", "", "Message to send")
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	workspace := expandPath(cfg.Agents.Defaults.Workspace)
	utils.SetupLogger(filepath.Join(workspace, "logs"))

	messageBus := bus.NewMessageBus()
	defer messageBus.Close()

	providerMap := providers.BuildProviders(cfg)
	if len(providerMap) == 0 {
		fmt.Println("No providers configured. Add an API key to your config and retry.")
		os.Exit(1)
	}

	loop := agent.NewAgentLoop(messageBus, cfg, providerMap, nil)

	if *message != "" {
		reply, err := loop.ProcessDirect(*message)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		return
	}

	fmt.Println("tinyclaw interactive mode. Type /new for a fresh session, /exit to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return
		}

		reply, err := loop.ProcessDirect(line)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}

// runGateway starts the full service: channels, schedulers, the agent loop,
// the dispatcher, and the health endpoint.
func runGateway(args []string) {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("c", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfigOrExit(*configPath)
	workspace := expandPath(cfg.Agents.Defaults.Workspace)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		fmt.Printf("Error creating workspace: %v\n", err)
		os.Exit(1)
	}
	utils.SetupLogger(filepath.Join(workspace, "logs"))

	messageBus := bus.NewMessageBus()

	providerMap := providers.BuildProviders(cfg)
	if len(providerMap) == 0 {
		fmt.Println("No providers configured. Add an API key to your config and retry.")
		os.Exit(1)
	}

	cronService := cron.NewService(filepath.Join(workspace, "cron"), cronHandler(messageBus))
	cronService.Start()

	loop := agent.NewAgentLoop(messageBus, cfg, providerMap, cronService)

	var heartbeatService *heartbeat.Service
	if cfg.Heartbeat.Enabled {
		interval := time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second
		heartbeatService = heartbeat.NewService(workspace, interval, cfg.Heartbeat.Channel, cfg.Heartbeat.To,
			heartbeatHandler(loop, messageBus))
		if err := heartbeatService.Start(); err != nil {
			log.Printf("Heartbeat failed to start: %v", err)
			heartbeatService = nil
		}
	}

	var deviceMonitor *devices.Monitor
	if cfg.Devices.Enabled {
		deviceMonitor = devices.NewMonitor(messageBus, cfg.Devices.PollSeconds, cfg.Heartbeat.Channel, cfg.Heartbeat.To)
		if err := deviceMonitor.Start(); err != nil {
			log.Printf("Device monitor failed to start: %v", err)
			deviceMonitor = nil
		}
	}

	if heartbeatService != nil || deviceMonitor != nil {
		loop.SetActivityObserver(func(channel, chatID string) {
			if heartbeatService != nil {
				heartbeatService.SetLastDestination(channel, chatID)
			}
			if deviceMonitor != nil {
				deviceMonitor.SetLastDestination(channel, chatID)
			}
		})
	}
	go loop.Run()

	manager := channels.NewManager(cfg, messageBus)
	manager.StartAll()
	go manager.RunDispatcher()

	health := gateway.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, version)
	health.Start()

	log.Printf("tinyclaw gateway %s running (channels: %s)", version, strings.Join(manager.Names(), ", "))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down")
	if heartbeatService != nil {
		heartbeatService.Stop()
	}
	if deviceMonitor != nil {
		deviceMonitor.Stop()
	}
	cronService.Stop()
	manager.StopAll()
	manager.Stop()
	loop.Stop()
	health.Stop()
	messageBus.Close()
}

// cronHandler turns a due job into bus traffic: deliver sends the payload
// text straight out, otherwise the text becomes an agent turn.
func cronHandler(messageBus *bus.MessageBus) cron.JobHandler {
	return func(job cron.Job) (string, error) {
		channel := job.Payload.Channel
		chatID := job.Payload.To

		if job.Payload.Deliver && channel != "" && chatID != "" {
			messageBus.PublishOutbound(models.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: job.Payload.Message,
			})
			return "delivered", nil
		}

		if channel == "" {
			channel = "cli"
		}
		if chatID == "" {
			chatID = job.ID
		}
		messageBus.PublishInbound(models.InboundMessage{
			Channel:   channel,
			SenderID:  "cron",
			ChatID:    chatID,
			Content:   job.Payload.Message,
			Timestamp: time.Now(),
		})
		return "queued", nil
	}
}

// heartbeatHandler runs the periodic prompt and forwards a substantive
// reply to the configured channel.
func heartbeatHandler(loop *agent.AgentLoop, messageBus *bus.MessageBus) heartbeat.Handler {
	return func(prompt, channel, chatID string) (string, error) {
		reply, err := loop.ProcessSystem(prompt, channel, chatID)
		if err != nil {
			return "", err
		}

		trimmed := strings.TrimSpace(reply)
		if trimmed != "" && !strings.Contains(trimmed, "HEARTBEAT_OK") && channel != "" && chatID != "" {
			messageBus.PublishOutbound(models.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: trimmed,
			})
		}
		return reply, nil
	}
}

func runOnboard() {
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		fmt.Printf("Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	configFile := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		cfg := config.DefaultConfig()

		file, err := os.Create(configFile)
		if err != nil {
			fmt.Printf("Warning: could not create config file: %v\n", err)
		} else {
			encoder := json.NewEncoder(file)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(cfg); err != nil {
				fmt.Printf("Error writing config file: %v\n", err)
			}
			file.Close()
			fmt.Printf("Created config file at %s\n", configFile)
		}
	} else {
		fmt.Printf("Config file already exists at %s\n", configFile)
	}

	workspace := filepath.Join(configDir, "workspace")
	for _, dir := range []string{workspace, filepath.Join(workspace, "memory"), filepath.Join(workspace, "skills"), filepath.Join(workspace, "sessions")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	seeds := map[string]string{
		"IDENTITY.md": "# Identity\n\nYou are tinyclaw, a small always-on assistant.\n",
		"SOUL.md":     "# Soul\n\nBe direct, warm, and brief. Prefer doing over explaining.\n",
		"AGENT.md":    "# Agent Notes\n\nProject- or deployment-specific instructions go here.\n",
		"USER.md":     "# User\n\nFacts about the user worth remembering across sessions.\n",
	}
	for name, content := range seeds {
		path := filepath.Join(workspace, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				fmt.Printf("Error creating %s: %v\n", name, err)
			} else {
				fmt.Printf("Created %s\n", path)
			}
		}
	}

	fmt.Println("Onboarding complete! Edit " + configFile + " to add your API key.")
}
