package broodminder

import (
	"encoding/binary"
	"errors"
	"testing"
)

// payload builds a manufacturer-data section the way the firmware lays it
// out, so tests exercise the exact wire offsets.
type payload struct {
	model      Model
	fwMinor    byte
	fwMajor    byte
	battery    byte
	seq        uint16
	tempRaw    uint16
	rtTempRaw  uint16
	weightL    uint16
	weightR    uint16
	humidity   byte
	weightL2   uint16
	weightR2   uint16
	rtWeight   uint16
	truncateAt int // 0 means full 21 bytes
}

func (p payload) encode() []byte {
	b := make([]byte, 21)
	b[0] = byte(p.model)
	b[1] = p.fwMinor
	b[2] = p.fwMajor
	b[3] = byte(p.rtTempRaw)
	b[4] = p.battery
	binary.LittleEndian.PutUint16(b[5:7], p.seq)
	binary.LittleEndian.PutUint16(b[7:9], p.tempRaw)
	b[9] = byte(p.rtTempRaw >> 8)
	binary.LittleEndian.PutUint16(b[10:12], p.weightL)
	binary.LittleEndian.PutUint16(b[12:14], p.weightR)
	b[14] = p.humidity
	binary.LittleEndian.PutUint16(b[15:17], p.weightL2)
	binary.LittleEndian.PutUint16(b[17:19], p.weightR2)
	binary.LittleEndian.PutUint16(b[19:21], p.rtWeight)
	if p.truncateAt > 0 {
		return b[:p.truncateAt]
	}
	return b
}

func TestDecodeT2(t *testing.T) {
	p := payload{
		model:     ModelT2,
		fwMinor:   5,
		fwMajor:   2,
		battery:   78,
		seq:       0x1234,
		tempRaw:   7421,
		rtTempRaw: 7450,
	}

	f, err := Decode(ManufacturerID, p.encode())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if f.Model != ModelT2 {
		t.Errorf("Model = %v; want %v", f.Model, ModelT2)
	}
	if got := f.Firmware(); got != "2.05" {
		t.Errorf("Firmware() = %q; want 2.05", got)
	}
	if f.Sequence != 0x1234 {
		t.Errorf("Sequence = %d; want %d", f.Sequence, 0x1234)
	}
	if f.TempRaw != 7421 {
		t.Errorf("TempRaw = %d; want 7421", f.TempRaw)
	}
	if f.BatteryRaw != 78 {
		t.Errorf("BatteryRaw = %d; want 78", f.BatteryRaw)
	}
	if !f.HasRealtime || f.RealtimeTempRaw != 7450 {
		t.Errorf("RealtimeTempRaw = %d (has=%v); want 7450", f.RealtimeTempRaw, f.HasRealtime)
	}
	if f.HasHumidity {
		t.Error("T2 must not report humidity")
	}
	if f.HasWeight {
		t.Error("T2 must not report weight")
	}
}

func TestDecodeWPlus(t *testing.T) {
	p := payload{
		model:    ModelWPlus,
		battery:  100,
		seq:      42,
		tempRaw:  6000,
		weightL:  35000,
		weightR:  36000,
		humidity: 55,
		rtWeight: 40000,
	}

	f, err := Decode(ManufacturerID, p.encode())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !f.HasWeight {
		t.Fatal("W+ must report weight")
	}
	if f.WeightLeftRaw != 35000 || f.WeightRightRaw != 36000 {
		t.Errorf("weight raw = %d/%d; want 35000/36000", f.WeightLeftRaw, f.WeightRightRaw)
	}
	if f.Has4Cell {
		t.Error("W+ has two load cells, not four")
	}
	if !f.HasHumidity || f.HumidityRaw != 55 {
		t.Errorf("HumidityRaw = %d (has=%v); want 55", f.HumidityRaw, f.HasHumidity)
	}
	if !f.HasRealtimeWeight || f.RealtimeWeightRaw != 40000 {
		t.Errorf("RealtimeWeightRaw = %d (has=%v); want 40000", f.RealtimeWeightRaw, f.HasRealtimeWeight)
	}
}

func TestDecodeFourCell(t *testing.T) {
	p := payload{
		model:    ModelDIY,
		seq:      1,
		tempRaw:  5500,
		weightL:  33000,
		weightR:  33100,
		weightL2: 33200,
		weightR2: 33300,
	}

	f, err := Decode(ManufacturerID, p.encode())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !f.Has4Cell {
		t.Fatal("DIY must report four load cells")
	}
	if f.WeightLeft2Raw != 33200 || f.WeightRight2Raw != 33300 {
		t.Errorf("second cell pair = %d/%d; want 33200/33300", f.WeightLeft2Raw, f.WeightRight2Raw)
	}
}

func TestDecodeTruncatedExtendedFields(t *testing.T) {
	// Older firmware sends only the first 15 bytes; the extended weight
	// fields must be skipped, not read past the buffer.
	p := payload{model: ModelDIY, seq: 9, tempRaw: 5500, truncateAt: 15}

	f, err := Decode(ManufacturerID, p.encode())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Has4Cell {
		t.Error("truncated payload must not report the second cell pair")
	}
	if f.HasRealtimeWeight {
		t.Error("truncated payload must not report realtime weight")
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		for _, n := range []int{0, 1, 14} {
			p := payload{model: ModelT2, truncateAt: n}
			data := p.encode()
			if n == 0 {
				data = nil
			}
			if _, err := Decode(ManufacturerID, data); !errors.Is(err, ErrTooShort) {
				t.Errorf("Decode(%d bytes) error = %v; want ErrTooShort", n, err)
			}
		}
	})

	t.Run("unknown vendor", func(t *testing.T) {
		p := payload{model: ModelT2, seq: 1, tempRaw: 6000}
		if _, err := Decode(0xFFFF, p.encode()); !errors.Is(err, ErrUnknownVendor) {
			t.Errorf("Decode() error = %v; want ErrUnknownVendor", err)
		}
	})

	t.Run("unsupported model", func(t *testing.T) {
		for _, m := range []Model{ModelSubHub, ModelHub4G, ModelHubWF, ModelBeeDar, Model(0), Model(0xFF)} {
			p := payload{model: m, seq: 1}
			if _, err := Decode(ManufacturerID, p.encode()); !errors.Is(err, ErrUnsupportedModel) {
				t.Errorf("Decode(model %d) error = %v; want ErrUnsupportedModel", m, err)
			}
		}
	})
}

func TestDecodeRoundTrip(t *testing.T) {
	// Re-encoding the decoded fields must reproduce the original values for
	// every structured field of the layout.
	cases := []payload{
		{model: ModelT, fwMinor: 1, fwMajor: 1, battery: 90, seq: 0, tempRaw: 0x8000},
		{model: ModelTH, battery: 55, seq: 65535, tempRaw: 0x7A12, humidity: 60},
		{model: ModelT2, fwMinor: 9, fwMajor: 3, battery: 10, seq: 300, tempRaw: 7421, rtTempRaw: 7433},
		{model: ModelWPlus, battery: 100, seq: 1000, tempRaw: 6000, rtTempRaw: 6010, weightL: 35000, weightR: 36000, humidity: 45, rtWeight: 40000},
	}

	for _, p := range cases {
		f, err := Decode(ManufacturerID, p.encode())
		if err != nil {
			t.Fatalf("Decode(model %v) error = %v", p.model, err)
		}

		back := payload{
			model:    f.Model,
			fwMinor:  f.FirmwareMinor,
			fwMajor:  f.FirmwareMajor,
			battery:  f.BatteryRaw,
			seq:      f.Sequence,
			tempRaw:  f.TempRaw,
			weightL:  f.WeightLeftRaw,
			weightR:  f.WeightRightRaw,
			humidity: f.HumidityRaw,
			weightL2: f.WeightLeft2Raw,
			weightR2: f.WeightRight2Raw,
			rtWeight: f.RealtimeWeightRaw,
		}
		if f.HasRealtime {
			back.rtTempRaw = f.RealtimeTempRaw
		}

		f2, err := Decode(ManufacturerID, back.encode())
		if err != nil {
			t.Fatalf("re-Decode(model %v) error = %v", p.model, err)
		}
		if f2 != f {
			t.Errorf("round trip mismatch for model %v:\n got %+v\nwant %+v", p.model, f2, f)
		}
	}
}
