package tokenprog

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Compute Budget 指令类型（u8）
const (
	computeSetUnitLimit uint8 = 2
	computeSetUnitPrice uint8 = 3
)

// SetComputeUnitLimit 构建 SetComputeUnitLimit 指令
// data: u8 2 | u32 units
func SetComputeUnitLimit(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeSetUnitLimit
	binary.LittleEndian.PutUint32(data[1:5], units)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// SetComputeUnitPrice 构建 SetComputeUnitPrice 指令（优先费，单位 micro-lamports）
// data: u8 3 | u64 microLamports
func SetComputeUnitPrice(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeSetUnitPrice
	binary.LittleEndian.PutUint64(data[1:9], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// PriorityFee 按单价和上限估算优先费（lamports，向上取整）
func PriorityFee(microLamports uint64, units uint32) uint64 {
	if microLamports == 0 || units == 0 {
		return 0
	}
	total := microLamports * uint64(units)
	return (total + 999_999) / 1_000_000
}

func decodeComputeBudget(d *Decoded, data []byte) {
	decoder := bin.NewBorshDecoder(data)
	var instrType uint8
	if err := decoder.Decode(&instrType); err != nil {
		return
	}
	switch instrType {
	case computeSetUnitLimit:
		var units uint32
		if err := decoder.Decode(&units); err != nil {
			return
		}
		d.Kind = KindComputeBudget
		d.Units = units
	case computeSetUnitPrice:
		var price uint64
		if err := decoder.Decode(&price); err != nil {
			return
		}
		d.Kind = KindComputeBudget
		d.Price = price
	}
}
