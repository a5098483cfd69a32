// Command client exercises the prediction API end to end: health check,
// model info, a single prediction and a batch prediction.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "prediction service base URL")
	flag.Parse()

	client := &apiClient{
		baseURL: *baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	fmt.Println("1. Checking service health...")
	health, err := client.get("/health")
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}
	printJSON(health)
	if health["status"] != "healthy" {
		log.Fatal("service is not healthy")
	}

	fmt.Println("\n2. Getting model information...")
	info, err := client.get("/model/info")
	if err != nil {
		log.Fatalf("model info failed: %v", err)
	}
	printJSON(info)

	fmt.Println("\n3. Making single prediction...")
	features := []float64{5.1, 3.5, 1.4, 0.2}
	fmt.Printf("Input features: %v\n", features)
	result, err := client.post("/predict", map[string]interface{}{"features": features})
	if err != nil {
		log.Fatalf("predict failed: %v", err)
	}
	printJSON(result)

	fmt.Println("\n4. Making batch predictions...")
	samples := [][]float64{
		{5.1, 3.5, 1.4, 0.2},
		{6.2, 2.9, 4.3, 1.3},
		{7.3, 2.9, 6.3, 1.8},
	}
	batch, err := client.post("/predict/batch", map[string]interface{}{"samples": samples})
	if err != nil {
		log.Fatalf("batch predict failed: %v", err)
	}
	printJSON(batch)

	fmt.Println("\nDone.")
}

func (c *apiClient) get(path string) (map[string]interface{}, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decode(resp)
}

func (c *apiClient) post(path string, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := decode(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %v", path, resp.StatusCode, data["error"])
	}
	return data, nil
}

func decode(resp *http.Response) (map[string]interface{}, error) {
	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid response body: %w", err)
	}
	return data, nil
}

func printJSON(data map[string]interface{}) {
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Fatalf("failed to render response: %v", err)
	}
	fmt.Println(string(pretty))
}
