package optimization

import "testing"

func TestForProfile(t *testing.T) {
	if ForProfile("low").MaxObservers != 5 {
		t.Errorf("low profile not selected")
	}
	if ForProfile("stress").EventChannelBuffer != 8192 {
		t.Errorf("stress profile not selected")
	}
	if ForProfile("").MaxMessagesPerSecond != 2000 {
		t.Errorf("default profile not selected")
	}
}

func TestAnalyzeSlowTickAndLedgerErrors(t *testing.T) {
	snapshot := map[string]interface{}{
		"tick":      map[string]interface{}{"max_latency_ms": 12.5},
		"ledger":    map[string]interface{}{"max_write_lat_ms": 3.0, "errors": int64(2)},
		"websocket": map[string]interface{}{"errors": int64(0)},
	}
	rec := Analyze(snapshot)
	if !rec.IncreaseEventBuffer || !rec.IncreaseDBConnections || rec.IncreaseBroadcastBuffer {
		t.Errorf("Unexpected recommendations %+v", rec)
	}
	if len(rec.Notes) != 2 {
		t.Errorf("Expected 2 notes, got %v", rec.Notes)
	}

	cfg := LowResourceConfig()
	ApplyRecommendations(cfg, rec)
	if cfg.EventChannelBuffer != 128 || cfg.DBMaxOpenConns != 3 || cfg.ClientSendBuffer != 8 {
		t.Errorf("Unexpected tuned config %+v", cfg)
	}
}

func TestAnalyzeHealthy(t *testing.T) {
	rec := Analyze(map[string]interface{}{})
	if rec.IncreaseEventBuffer || rec.IncreaseBroadcastBuffer || rec.IncreaseDBConnections || len(rec.Notes) != 0 {
		t.Errorf("Empty snapshot should need no tuning: %+v", rec)
	}
}
