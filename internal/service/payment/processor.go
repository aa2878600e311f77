package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"milestone-service/pkg/circuitbreaker"
	"milestone-service/pkg/config"
	"milestone-service/pkg/metrics"
)

// TransferRequest describes a milestone payout: homeowner escrow account to
// contractor connected account, with the platform fee withheld by the
// processor.
type TransferRequest struct {
	Amount         int64  `json:"amount"`
	PayerAccount   string `json:"payer_account"`
	PayeeAccount   string `json:"payee_account"`
	ApplicationFee int64  `json:"application_fee"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Processor is the external payment processor. Implementations must be safe
// for concurrent use.
type Processor interface {
	InitiateTransfer(ctx context.Context, req TransferRequest) (string, error)
	QueryTransferStatus(ctx context.Context, transactionRef string) (string, error)
}

// HTTPProcessor talks to the processor's REST API behind a circuit breaker.
type HTTPProcessor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewHTTPProcessor(cfg config.PaymentConfig) *HTTPProcessor {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProcessor{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
	}
}

type transferResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
}

func (p *HTTPProcessor) InitiateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	start := time.Now()

	var ref string
	err := p.breaker.Execute(func() error {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transfers", bytes.NewReader(b))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("payment processor 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("payment processor error: %d", resp.StatusCode)
		}

		var tr transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return err
		}
		if tr.TransactionRef == "" {
			return fmt.Errorf("payment processor returned empty transaction ref")
		}
		ref = tr.TransactionRef
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordPaymentProcessorLatency("initiate_transfer", status, time.Since(start))

	if err != nil {
		return "", err
	}
	return ref, nil
}

func (p *HTTPProcessor) QueryTransferStatus(ctx context.Context, transactionRef string) (string, error) {
	start := time.Now()

	var result string
	err := p.breaker.Execute(func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transfers/"+transactionRef, nil)
		if err != nil {
			return err
		}
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("payment processor 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("payment processor error: %d", resp.StatusCode)
		}

		var tr transferResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return err
		}
		result = tr.Status
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordPaymentProcessorLatency("query_transfer_status", status, time.Since(start))

	if err != nil {
		return "", err
	}
	return result, nil
}
