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

// Field is a Cycling Power Measurement flag index (GATT Specification
// Supplement, Cycling Power Measurement flags).
type Field int

const (
	FieldPedalPowerBalance Field = iota
	FieldPedalPowerBalanceReference
	FieldAccumulatedTorque
	FieldAccumulatedTorqueSource
	FieldWheelRevolutionData // [0:4] cumulative revolutions, [4:6] time in 1/2048 s
	FieldCrankRevolutionData // [0:2] cumulative revolutions, [2:4] time in 1/1024 s
	FieldExtremeForceMagnitudes
	FieldExtremeTorqueMagnitudes
	FieldExtremeAngles
	FieldTopDeadSpotAngle
	FieldBottomDeadSpotAngle
	FieldAccumulatedEnergy // kJ
	FieldOffsetCompensationIndicator
	// Flags 13-15 are reserved.
)

// payloadHeaderSize covers the flag field [0:2] and instantaneous power [2:4].
const payloadHeaderSize = 4

// fieldSizes is the payload size in bytes of each optional field, indexed by Field.
var fieldSizes = [...]int{
	FieldPedalPowerBalance:           1,
	FieldPedalPowerBalanceReference:  0,
	FieldAccumulatedTorque:           2,
	FieldAccumulatedTorqueSource:     0,
	FieldWheelRevolutionData:         6,
	FieldCrankRevolutionData:         4,
	FieldExtremeForceMagnitudes:      4,
	FieldExtremeTorqueMagnitudes:     4,
	FieldExtremeAngles:               3,
	FieldTopDeadSpotAngle:            2,
	FieldBottomDeadSpotAngle:         2,
	FieldAccumulatedEnergy:           2,
	FieldOffsetCompensationIndicator: 0,
}

// Size returns the fixed payload size of the field, 0 for flag-only and reserved bits.
func (f Field) Size() int {
	if f < 0 || int(f) >= len(fieldSizes) {
		return 0
	}
	return fieldSizes[f]
}

// FlagSet is the flag field expanded into 16 booleans, bit 0 first.
type FlagSet [16]bool

// ParseFlags expands a flag value. Values outside 0-65535 yield an empty set,
// so every optional field is treated as absent.
func ParseFlags(value int) FlagSet {
	var fs FlagSet
	if value < 0 || value > 0xFFFF {
		return fs
	}
	for i := range fs {
		fs[i] = value&(1<<i) != 0
	}
	return fs
}

// ReadFlags reads the flag field the way the existing transmitter packs it:
// byte0 + byte1*100. This is not a little-endian uint16 and must stay that way.
func ReadFlags(b0, b1 byte) FlagSet {
	return ParseFlags(int(b0) + int(b1)*100)
}

// EncodeFlags is the inverse of ReadFlags. Every defined flag combination
// (bits 0-12, at most 8191) fits the packing.
func EncodeFlags(fs FlagSet) (byte, byte) {
	v := fs.Value()
	return byte(v % 100), byte(v / 100)
}

// NewFlagSet returns a set with the given fields present.
func NewFlagSet(fields ...Field) FlagSet {
	var fs FlagSet
	for _, f := range fields {
		if f >= 0 && int(f) < len(fs) {
			fs[f] = true
		}
	}
	return fs
}

// Value packs the set back into its integer form.
func (fs FlagSet) Value() int {
	v := 0
	for i, set := range fs {
		if set {
			v |= 1 << i
		}
	}
	return v
}

// Has reports whether the field is present.
func (fs FlagSet) Has(f Field) bool {
	if f < 0 || int(f) >= len(fs) {
		return false
	}
	return fs[f]
}

// OffsetOf returns the payload byte offset of a present field: the header
// size plus the sizes of every lower-indexed present field.
func (fs FlagSet) OffsetOf(f Field) (int, bool) {
	if !fs.Has(f) {
		return 0, false
	}
	offset := payloadHeaderSize
	for i := Field(0); i < f; i++ {
		if fs[i] {
			offset += i.Size()
		}
	}
	return offset, true
}
