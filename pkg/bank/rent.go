package bank

// Rent parameters matching the default cluster configuration.
const (
	AccountStorageOverhead = 128
	LamportsPerByteYear    = 3480
	ExemptionThreshold     = 2
)

// RentExemptMinimum returns the number of lamports an account holding size
// bytes of data must carry to be exempt from rent.
func RentExemptMinimum(size uint64) uint64 {
	return (AccountStorageOverhead + size) * LamportsPerByteYear * ExemptionThreshold
}

// IsRentExempt returns whether the account carries enough lamports for its
// data size.
func IsRentExempt(account *Account) bool {
	return account.Lamports >= RentExemptMinimum(uint64(len(account.Data)))
}
