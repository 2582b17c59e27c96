package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func chartPayload(timestamps []int64, closes []string) string {
	ts := ""
	for i, t := range timestamps {
		if i > 0 {
			ts += ","
		}
		ts += fmt.Sprintf("%d", t)
	}
	cl := ""
	for i, c := range closes {
		if i > 0 {
			cl += ","
		}
		cl += c
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{"close":[%s]}]}}],"error":null}}`, ts, cl)
}

func TestFetchDailySeriesParsesChart(t *testing.T) {
	day := int64(86400)
	base := int64(1735776000) // 2025-01-02 00:00:00 UTC

	var gotPath, gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		// Second value is a null bar, fourth repeats a timestamp
		payload := chartPayload(
			[]int64{base, base + day, base + 2*day, base + 2*day, base + 3*day},
			[]string{"4.21", "null", "4.25", "9.99", "4.19"},
		)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	series, err := client.FetchDailySeries(context.Background(), "^IRX", 90*24*time.Hour)
	if err != nil {
		t.Fatalf("FetchDailySeries() error = %v", err)
	}

	if gotPath != "/v8/finance/chart/^IRX" {
		t.Errorf("path = %q, want chart endpoint", gotPath)
	}
	if gotRange != "3mo" {
		t.Errorf("range = %q, want 3mo for a 90 day lookback", gotRange)
	}

	// Null bar and duplicate timestamp are dropped
	if series.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", series.Len())
	}
	values := series.Values()
	want := []float64{4.21, 4.25, 4.19}
	for i, v := range values {
		if v != want[i] {
			t.Errorf("values[%d] = %v, want %v", i, v, want[i])
		}
	}
	if series.Instrument() != "^IRX" {
		t.Errorf("Instrument() = %q, want ^IRX", series.Instrument())
	}

	obs := series.Observations()
	for i := 1; i < len(obs); i++ {
		if !obs[i].Timestamp.After(obs[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestFetchDailyRateSeriesScalesPercentToDecimal(t *testing.T) {
	base := int64(1735776000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartPayload([]int64{base, base + 86400}, []string{"4.20", "4.30"}))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	series, err := client.FetchDailyRateSeries(context.Background(), "^IRX", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("FetchDailyRateSeries() error = %v", err)
	}

	values := series.Values()
	if math.Abs(values[0]-0.042) > 1e-12 || math.Abs(values[1]-0.043) > 1e-12 {
		t.Errorf("values = %v, want percent scaled to decimals", values)
	}
}

func TestFetchDailySeriesServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
			},
		},
		{
			name: "api error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[],"error":{"code":"Not Found"}}}`)
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, zerolog.Nop())
			client.maxRetries = 1 // keep the failure path fast

			_, err := client.FetchDailySeries(context.Background(), "SPY", 30*24*time.Hour)
			if err == nil {
				t.Error("FetchDailySeries() expected error, got nil")
			}
		})
	}
}

func TestFetchDailySeriesHonorsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, chartPayload([]int64{1735776000}, []string{"4.2"}))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchDailySeries(ctx, "SPY", 30*24*time.Hour)
	if err == nil {
		t.Error("expected context error, got nil")
	}
}

func TestRangeForLookback(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{days: 0, want: "1y"},
		{days: 3, want: "5d"},
		{days: 30, want: "1mo"},
		{days: 90, want: "3mo"},
		{days: 180, want: "6mo"},
		{days: 365, want: "1y"},
		{days: 500, want: "2y"},
		{days: 1500, want: "5y"},
		{days: 4000, want: "10y"},
	}

	for _, tt := range tests {
		got := rangeForLookback(time.Duration(tt.days) * 24 * time.Hour)
		if got != tt.want {
			t.Errorf("rangeForLookback(%dd) = %q, want %q", tt.days, got, tt.want)
		}
	}
}
