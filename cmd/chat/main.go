package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "engram server URL")
	agentID := flag.String("agent", "cli-agent", "Agent id to chat with")
	flag.Parse()

	fmt.Println("engram CLI Chat")
	fmt.Printf("Server: %s | Agent: %s\n", *server, *agentID)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /stats, /think <goal>, /lint, /fossilize, /save, /load")
	fmt.Println("---")

	createAgent(*server, *agentID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		switch {
		case input == "/stats":
			showStats(*server, *agentID)
		case strings.HasPrefix(input, "/think "):
			think(*server, *agentID, strings.TrimPrefix(input, "/think "))
		case input == "/lint":
			post(*server, "/api/agents/"+*agentID+"/lint", nil)
		case input == "/fossilize":
			post(*server, "/api/agents/"+*agentID+"/fossilize", nil)
		case input == "/save":
			post(*server, "/api/agents/"+*agentID+"/snapshot", nil)
		case input == "/load":
			post(*server, "/api/agents/"+*agentID+"/restore", nil)
		default:
			sendMessage(*server, *agentID, input)
		}
	}
}

func client() *http.Client {
	return &http.Client{Timeout: 65 * time.Second}
}

func createAgent(server, agentID string) {
	body, _ := json.Marshal(map[string]string{"agent_id": agentID})
	resp, err := client().Post(server+"/api/agents", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Failed to reach server: %v", err)
		os.Exit(1)
	}
	resp.Body.Close()
}

func sendMessage(server, agentID, content string) {
	body, _ := json.Marshal(map[string]string{"message": content})

	resp, err := client().Post(
		server+"/api/agents/"+agentID+"/chat",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var msg struct {
		AgentID  string `json:"agent_id"`
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Printf("\033[36m[%s]\033[0m %s\n", msg.AgentID, msg.Response)
}

func think(server, agentID, goal string) {
	body, _ := json.Marshal(map[string]string{"goal": goal})
	resp, err := client().Post(
		server+"/api/agents/"+agentID+"/think",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var result struct {
		Outcome struct {
			OutcomeType string `json:"outcome_type"`
			Result      string `json:"result"`
		} `json:"outcome"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		printError("Failed to parse result: %v", err)
		return
	}
	fmt.Printf("\033[33m[%s]\033[0m %s (confidence %.2f)\n",
		result.Outcome.OutcomeType, result.Outcome.Result, result.Confidence)
}

func showStats(server, agentID string) {
	resp, err := client().Get(server + "/api/agents/" + agentID)
	if err != nil {
		printError("Failed to fetch stats: %v", err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Stats struct {
			Fragments         int `json:"fragments"`
			Edges             int `json:"edges"`
			CompiledModules   int `json:"compiled_modules"`
			ConversationTurns int `json:"conversation_turns"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		printError("Failed to parse stats: %v", err)
		return
	}
	fmt.Printf("Fragments: %d | Edges: %d | Modules: %d | Turns: %d\n",
		body.Stats.Fragments, body.Stats.Edges, body.Stats.CompiledModules, body.Stats.ConversationTurns)
}

func post(server, path string, payload interface{}) {
	body, _ := json.Marshal(payload)
	resp, err := client().Post(server+path, "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		printError("Server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return
	}
	fmt.Println(strings.TrimSpace(string(data)))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
