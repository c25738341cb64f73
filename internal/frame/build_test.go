package frame

import (
	"bytes"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
		want    []byte
		cmd     byte
	}{
		{
			name:    "get firmware version",
			cmd:     0x02,
			payload: nil,
			want:    []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00},
		},
		{
			name:    "diagnose communication line test",
			cmd:     0x00,
			payload: []byte{0x00, 't', 'a', 'm', 'a'},
			want: []byte{
				0x00, 0x00, 0xFF, 0x07, 0xF9, 0xD4, 0x00,
				0x00, 0x74, 0x61, 0x6D, 0x61, 0x89, 0x00,
			},
		},
		{
			name:    "list passive targets",
			cmd:     0x4A,
			payload: []byte{0x01, 0x00},
			want:    []byte{0x00, 0x00, 0xFF, 0x04, 0xFC, 0xD4, 0x4A, 0x01, 0x00, 0xE1, 0x00},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := BuildCommand(tt.cmd, tt.payload)
			if err != nil {
				t.Fatalf("BuildCommand() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("BuildCommand() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestBuildResponse(t *testing.T) {
	t.Parallel()
	got, err := BuildResponse(0x03, []byte{0x32, 0x01, 0x06, 0x07})
	if err != nil {
		t.Fatalf("BuildResponse() error = %v", err)
	}
	want := []byte{0x00, 0x00, 0xFF, 0x06, 0xFA, 0xD5, 0x03, 0x32, 0x01, 0x06, 0x07, 0xE8, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildResponse() = % X, want % X", got, want)
	}
}

func TestBuildCommandOversizedPayload(t *testing.T) {
	t.Parallel()
	if _, err := BuildCommand(0x40, make([]byte, MaxPayloadLength+1)); err != ErrOversizedPayload {
		t.Errorf("BuildCommand() error = %v, want ErrOversizedPayload", err)
	}
	if _, err := BuildCommand(0x40, make([]byte, MaxPayloadLength)); err != nil {
		t.Errorf("BuildCommand() at limit error = %v", err)
	}
}

// Frames must be internally consistent: LEN covers TFI+CMD+payload, LEN+LCS
// and the DCS-covered span both sum to zero mod 256.
func TestBuildFrameConsistency(t *testing.T) {
	t.Parallel()
	payloads := [][]byte{
		nil,
		{},
		{0x00},
		{0x01, 0x00},
		bytes.Repeat([]byte{0xAB}, MaxPayloadLength),
	}

	for _, payload := range payloads {
		payload := payload
		frm, err := BuildCommand(0x4A, payload)
		if err != nil {
			t.Fatalf("BuildCommand() error = %v", err)
		}

		if !bytes.Equal(frm[:3], StartSequence) {
			t.Fatalf("frame start = % X, want % X", frm[:3], StartSequence)
		}
		length := frm[3]
		if int(length) != len(payload)+2 {
			t.Fatalf("LEN = %d, want %d", length, len(payload)+2)
		}
		if length+frm[4] != 0 {
			t.Fatalf("LEN + LCS = 0x%02X, want 0x00", length+frm[4])
		}
		body := frm[5 : 5+int(length)]
		if chk := CalculateChecksum(body) + frm[len(frm)-2]; chk != 0 {
			t.Fatalf("body + DCS = 0x%02X, want 0x00", chk)
		}
		if frm[len(frm)-1] != Postamble {
			t.Fatalf("postamble = 0x%02X, want 0x00", frm[len(frm)-1])
		}
	}
}
