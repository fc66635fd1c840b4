package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"fabrica/server/internal/api"
)

var (
	totalRequests   int64
	successRequests int64
	failedRequests  int64
)

// Нагрузочный тест расчета себестоимости: HTTP POST /simulations/breakdown и gRPC ComputeBreakdown
func main() {
	httpURL := flag.String("http", "http://localhost:8080/api/v1/simulations/breakdown", "HTTP endpoint расчета")
	grpcAddr := flag.String("grpc", "localhost:50051", "адрес gRPC сервера, пусто - только HTTP")
	tenant := flag.String("tenant", "demo", "tenant_id")
	workers := flag.Int("workers", 200, "количество параллельных клиентов")
	duration := flag.Duration("duration", time.Minute, "длительность теста")
	flag.Parse()

	item := map[string]interface{}{
		"family":                  "Estructuras",
		"name":                    "Mesa de trabajo",
		"sale_price":              185000,
		"tax_pct":                 3.5,
		"quantity_to_manufacture": 10,
		"units_per_hour":          0.5,
		"lines": []interface{}{
			map[string]interface{}{"material_name": "Acero SAE 1010", "quantity_per_unit": 12},
			map[string]interface{}{"material_name": "Pintura epoxi", "quantity_per_unit": 0.8},
		},
	}
	payload, err := json.Marshal(map[string]interface{}{"tenant_id": *tenant, "item": item})
	if err != nil {
		panic(err)
	}
	grpcReq, err := structpb.NewStruct(map[string]interface{}{"tenant_id": *tenant, "item": item})
	if err != nil {
		panic(err)
	}

	var conn *grpc.ClientConn
	if *grpcAddr != "" {
		conn, err = grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			panic(err)
		}
		defer conn.Close()
	}
	method := "/" + api.CostingServiceDesc.ServiceName + "/ComputeBreakdown"

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	fmt.Println("🚀 Нагрузочное тестирование расчета себестоимости")
	fmt.Println("📍 HTTP:", *httpURL, "| gRPC:", *grpcAddr)
	fmt.Printf("🎯 %d клиентов в течение %s\n", *workers, *duration)

	start := time.Now()
	go monitor(ctx, start)

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: *workers,
			MaxIdleConns:        *workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *workers; i++ {
		useGRPC := conn != nil && i%2 == 1
		g.Go(func() error {
			for gctx.Err() == nil {
				atomic.AddInt64(&totalRequests, 1)
				var ok bool
				if useGRPC {
					ok = conn.Invoke(gctx, method, grpcReq, new(structpb.Struct)) == nil
				} else {
					ok = postOnce(gctx, client, *httpURL, payload)
				}
				if ok {
					atomic.AddInt64(&successRequests, 1)
				} else if gctx.Err() == nil {
					atomic.AddInt64(&failedRequests, 1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	total := atomic.LoadInt64(&totalRequests)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("✅ Успешно: %d\n", atomic.LoadInt64(&successRequests))
	fmt.Printf("❌ Ошибок: %d\n", atomic.LoadInt64(&failedRequests))
	fmt.Printf("⚡ RPS: %.0f за %s\n", float64(total)/elapsed.Seconds(), elapsed.Round(time.Second))
}

func postOnce(ctx context.Context, client *http.Client, url string, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func monitor(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			elapsed := time.Since(start).Seconds()
			current := atomic.LoadInt64(&totalRequests)
			fmt.Printf("⏱️  [%.0fs] RPS: %.0f | Всего: %d | 💾 %.2f MB | Горутин: %d\n",
				elapsed, float64(current)/elapsed, current, float64(m.Alloc)/1024/1024, runtime.NumGoroutine())
		}
	}
}
