package killswitch

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

// Сигналы применяются напрямую, без Redis: publish для remote-переходов
// не вызывается, поэтому nil-клиент безопасен.
func TestBridgeAppliesRemoteSignals(t *testing.T) {
	sw := NewSwitch(zap.NewNop())
	b := NewBridge(sw, nil, "inst-a", zap.NewNop())

	b.apply("inst-b|kill|venue incident|op-9")
	st := sw.GetStatus()
	if !st.GlobalKilled {
		t.Fatal("remote kill must engage local switch")
	}
	if st.KilledBy != "remote:op-9" {
		t.Fatalf("KilledBy = %q, want remote:op-9", st.KilledBy)
	}

	b.apply("inst-b|resume|clear|op-9")
	if sw.GetStatus().GlobalKilled {
		t.Fatal("remote resume must release local switch")
	}
}

func TestBridgeIgnoresOwnSignals(t *testing.T) {
	sw := NewSwitch(zap.NewNop())
	b := NewBridge(sw, nil, "inst-a", zap.NewNop())

	b.apply("inst-a|kill|echo of our own broadcast|op")
	if sw.GetStatus().GlobalKilled {
		t.Fatal("own signal must not loop back")
	}
}

func TestBridgeRejectsMalformedSignals(t *testing.T) {
	sw := NewSwitch(zap.NewNop())
	b := NewBridge(sw, nil, "inst-a", zap.NewNop())

	b.apply("garbage")
	b.apply("a|b|c")
	b.apply("inst-b|explode|r|op")
	if sw.GetStatus().GlobalKilled {
		t.Fatal("malformed signals must be dropped")
	}

	// Доставка событий слушателям асинхронная; даем ей завершиться до выхода
	time.Sleep(10 * time.Millisecond)
}
