package hexconv

// Halfbyte maps an ASCII hex digit into its value. Non-hex characters map into 0xFF.
var Halfbyte = func() (table [256]byte) {
	for i := range table {
		table[i] = 0xFF
	}

	for i := byte(0); i < 10; i++ {
		table['0'+i] = i
	}

	for i := byte(0); i < 6; i++ {
		table['a'+i] = 10 + i
		table['A'+i] = 10 + i
	}

	return table
}()
