// Bike Trainer - BLE sensor ingestion and training session recorder.
// Copyright (C) 2026  Paulo Sérgio
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package sensor

import "testing"

func TestParseFlagsOutOfRangeIsEmpty(t *testing.T) {
	for _, v := range []int{-1, 0x10000, 1 << 20} {
		fs := ParseFlags(v)
		if fs != (FlagSet{}) {
			t.Fatalf("ParseFlags(%d) = %v, want empty set", v, fs)
		}
	}
}

func TestReadFlagsUsesTransmitterPacking(t *testing.T) {
	fs := ReadFlags(48, 20) // 48 + 20*100 = 2048
	if !fs.Has(FieldAccumulatedEnergy) {
		t.Fatal("expected accumulated energy flag")
	}
	if fs.Value() != 2048 {
		t.Fatalf("value = %d, want 2048", fs.Value())
	}

	// A little-endian read of the same bytes would be 0x1430.
	if fs.Has(FieldWheelRevolutionData) || fs.Has(FieldCrankRevolutionData) {
		t.Fatalf("unexpected flags in %v", fs)
	}
}

func TestEncodeFlagsRoundTrip(t *testing.T) {
	for v := 0; v < 1<<13; v++ {
		b0, b1 := EncodeFlags(ParseFlags(v))
		if got := ReadFlags(b0, b1).Value(); got != v {
			t.Fatalf("flags %d encoded as (%d,%d) read back as %d", v, b0, b1, got)
		}
	}
}

func TestOffsetOf(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
		target Field
		want   int
	}{
		{"wheel alone", []Field{FieldWheelRevolutionData}, FieldWheelRevolutionData, 4},
		{"crank after wheel", []Field{FieldWheelRevolutionData, FieldCrankRevolutionData}, FieldCrankRevolutionData, 10},
		{"crank after balance torque wheel",
			[]Field{FieldPedalPowerBalance, FieldAccumulatedTorque, FieldWheelRevolutionData, FieldCrankRevolutionData},
			FieldCrankRevolutionData, 13},
		{"energy after wheel crank extremes",
			[]Field{FieldWheelRevolutionData, FieldCrankRevolutionData, FieldExtremeForceMagnitudes, FieldExtremeAngles, FieldAccumulatedEnergy},
			FieldAccumulatedEnergy, 21},
		{"zero size flags do not shift", []Field{FieldPedalPowerBalanceReference, FieldAccumulatedTorqueSource, FieldCrankRevolutionData},
			FieldCrankRevolutionData, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NewFlagSet(tc.fields...).OffsetOf(tc.target)
			if !ok {
				t.Fatal("field reported absent")
			}
			if got != tc.want {
				t.Fatalf("offset = %d, want %d", got, tc.want)
			}
		})
	}

	if _, ok := NewFlagSet(FieldWheelRevolutionData).OffsetOf(FieldCrankRevolutionData); ok {
		t.Fatal("absent field reported present")
	}
}

func TestOffsetsIncreaseWithFieldIndex(t *testing.T) {
	for v := 0; v < 1<<13; v++ {
		fs := ParseFlags(v)
		next := payloadHeaderSize
		for f := Field(0); f <= FieldOffsetCompensationIndicator; f++ {
			off, ok := fs.OffsetOf(f)
			if !ok {
				continue
			}
			if off != next {
				t.Fatalf("flags %d field %d: offset %d, want %d", v, f, off, next)
			}
			next = off + f.Size()
		}
	}
}
