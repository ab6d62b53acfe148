package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	buf := Encode(FlagReply, 42, 1.5, 2.25, 3.125)

	if len(buf) != Len {
		t.Fatalf("encoded length %d, want %d", len(buf), Len)
	}

	pkt, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if pkt.Flags != FlagReply || pkt.Sequence != 42 {
		t.Errorf("got flags=0x%02x seq=%d, want flags=0x%02x seq=42", pkt.Flags, pkt.Sequence, FlagReply)
	}
	if pkt.T1 != 1.5 || pkt.T2 != 2.25 || pkt.T3 != 3.125 {
		t.Errorf("got t1=%v t2=%v t3=%v", pkt.T1, pkt.T2, pkt.T3)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode(make([]byte, Len-1))
	if err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestDecodeRejectsUnknownFlags(t *testing.T) {
	buf := Encode(FlagReply, 1, 0, 0, 0)
	buf[0] = 0x7f

	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected error for invalid flags")
	}
}

func TestDecodeRejectsLongPacket(t *testing.T) {
	buf := append(Encode(FlagRequest, 1, 0, 0, 0), 0x00)

	_, err := Decode(buf)
	if err == nil {
		t.Fatal("expected error for long packet")
	}
}
