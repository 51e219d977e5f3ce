package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

var baseURL = "http://localhost:8080"

const sample = `name,city
Acme Corporation,Berlin
ACME Corp,Berlin
Globex,Springfield
Initech,Austin
Acme Corporation,Berlin
`

func main() {
	if u := os.Getenv("SMOKE_URL"); u != "" {
		baseURL = u
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting smoke run against", baseURL)

	fmt.Println("1. Uploading file...")
	var info struct {
		SessionID string `json:"session_id"`
		Rows      int    `json:"rows"`
	}
	if !upload("smoke.csv", []byte(sample), &info) {
		fail("Upload")
	}
	fmt.Printf("PASSED: Upload (session %s, %d rows)\n", info.SessionID, info.Rows)

	fmt.Println("2. Analyzing...")
	var res struct {
		TotalGroups     int `json:"duplicate_groups"`
		DuplicateGroups []struct {
			DuplicateID string `json:"duplicate_id"`
		} `json:"groups"`
	}
	payload := map[string]interface{}{
		"session_id":           info.SessionID,
		"columns":              []string{"name", "city"},
		"similarity_threshold": 0.9,
	}
	if !sendRequest("POST", "/analyze", payload, &res) {
		fail("Analyze")
	}
	fmt.Printf("PASSED: Analyze (%d groups)\n", res.TotalGroups)

	fmt.Println("3. Reviewing groups...")
	for _, g := range res.DuplicateGroups {
		review := map[string]interface{}{
			"session_id":   info.SessionID,
			"duplicate_id": g.DuplicateID,
			"is_duplicate": true,
		}
		if !sendRequest("POST", "/review", review, nil) {
			fail("Review " + g.DuplicateID)
		}
	}
	fmt.Println("PASSED: Review")

	fmt.Println("4. Exporting report...")
	n, ok := download("/export/" + info.SessionID)
	if !ok {
		fail("Export")
	}
	fmt.Printf("PASSED: Export (%d bytes)\n", n)

	if !sendRequest("DELETE", "/session/"+info.SessionID, nil, nil) {
		fail("Delete session")
	}
	fmt.Println("PASSED: Delete session")
}

func fail(step string) {
	fmt.Println("FAILED:", step)
	os.Exit(1)
}

func upload(filename string, data []byte, out interface{}) bool {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		fmt.Printf("Error creating form: %v\n", err)
		return false
	}
	part.Write(data)
	w.Close()

	req, err := http.NewRequest("POST", baseURL+"/upload", &buf)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return do(req, out)
}

func sendRequest(method, endpoint string, payload, out interface{}) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

func download(endpoint string) (int, bool) {
	resp, err := http.Get(baseURL + endpoint)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return 0, false
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(data))
		return 0, false
	}
	fmt.Println("Content-Disposition:", resp.Header.Get("Content-Disposition"))
	return len(data), true
}

func do(req *http.Request, out interface{}) bool {
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			fmt.Printf("Error decoding response: %v\n", err)
			return false
		}
	}
	return true
}
