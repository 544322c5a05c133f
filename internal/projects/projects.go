// Package projects holds the on-chain identities Atlas tracks: the FLP
// project registry, the oracle process ids, and the authority addresses
// whose messages are treated as canonical.
package projects

// Process ids and addresses that affect on-chain correctness.
const (
	// AOAuthority signs oracle balance sheets and pushed delegation
	// preference messages.
	AOAuthority = "fcoN_xJeisVsPXA-trzVAuIiqO3ydLQxM-L4XbrQKzY"

	// DelegationPID is the process that re-emits per-user delegation
	// preferences, looked up by their Pushed-For batch id.
	DelegationPID = "cuxSKjGJ-WDB9PzSkVkVVrIBSh3DrYHYz44usQOj5yE"

	// Oracle processes publishing Set-Balances sheets, one per ticker.
	USDSOraclePID  = "qjOMZnan8Vo2gaLaOF1FXbFXOQOn_5sKbYspNSVRyNY"
	STETHOraclePID = "wJV8FMkpoeLsTjJ6O7YZEuQgMqj-sDjPHhTeA73RsCc"
	DAIOraclePID   = "5q8vpzC5QAKOAJFM26MAKfZw1gwtw7WA_J2861ZiKhI"

	// InternalPIPID is the sentinel target used when a wallet never
	// published a Set-Delegation message ("defaults to 100% PI"). It is the
	// PI project's process id so the implicit preference apportions like an
	// explicit one.
	InternalPIPID = "4hXj_E-5fAKmo4E8KjgQvuDJKAFk9P2grhycVmISDLs"

	// Bridged staking contracts on the origin chain, per ticker.
	USDSStakingAddress  = "0x7cd01d5cad4ba0caeba02583a5c61d35b23e08eb"
	STETHStakingAddress = "0xfe08d40eee53d64936d3128838867c867602665c"
	DAIStakingAddress   = "0x6a1b588b0684dace1f53c5820111f400b3dbfebf"
)

// MaxFactor is the delegation weight representing 100%.
const MaxFactor uint32 = 10000

// Start heights for the indexed streams.
const (
	ProtocolAStart  uint32 = 1594020
	ProtocolBStart  uint32 = 1616999
	AOTokenStart    uint32 = 1620000
	DelegationStart uint32 = 1608145
)

// AOTokenPID is the AO token process tracked by the token stream.
const AOTokenPID = "0syT13r0s0tgPmIed95bJnuSqaD29HQNN8D3ElLSrsc"

// Project is one FLP participant eligible to receive delegated shares.
type Project struct {
	Name         string `json:"name"`
	PID          string `json:"pid"`
	Token        string `json:"token"`
	Denomination int    `json:"denomination"`
}

// All is the FLP registry in launch order.
var All = []Project{
	{Name: "PI", PID: "4hXj_E-5fAKmo4E8KjgQvuDJKAFk9P2grhycVmISDLs", Token: "4hXj_E-5fAKmo4E8KjgQvuDJKAFk9P2grhycVmISDLs", Denomination: 12},
	{Name: "APUS", PID: "jHZBsy0fciXzNhLywLhLDBWxzGk64LfDfPtCOp2i_Gs", Token: "mqBYxpDsolZmJyBdTK8TJp_ftOuIUXVYcSQ8MYZdJeQ", Denomination: 12},
	{Name: "LOAD", PID: "Qz3n2P3RlxH472LfYIrQmMzmLM6ZcyvsaFQF0zZvsVw", Token: "gx_jKkXI2JabHndAf2S8rTbXbKuCZVpPCMyfYvJWOCg", Denomination: 18},
	{Name: "BOTG", PID: "UcBPqkaVI7W4I_YMznrt2JUoyc_7TScCdZWOOSBvMSU", Token: "Nx-_IchdpXDpUqZdrCMMt3eM0XyZ7Dmyds8EIPRDaFI", Denomination: 18},
	{Name: "AOS", PID: "t7_efxAUDftIEl9QfBi0KYSz8uHpMS81xfD3eqd89rQ", Token: "GegJSRSQSAAzmbjWLUE3CG1GUveM4riwmwUonFcNfkc", Denomination: 18},
	{Name: "WNDR", PID: "11T2aA8MpWyY4enrDJptyurTpgAIVT0OQ6FlHcQ2L9w", Token: "7GoQfmSOct_aUOGW_BpB3fqQZOJsmYUyJdptFhSvpBc", Denomination: 18},
	{Name: "ACTION", PID: "NXZjrPKhgcJ2CzSnR6f0r2mUjMzYIPfSXJmg2dKPo3s", Token: "OiNYKJ16jP7FTZDMLncuZmYdqkQe32TuUDvOIyw13Hs", Denomination: 18},
	{Name: "SMONEY", PID: "oIuISObCStjTFMnV3CrrERRb9KTDGN4507-ARysYzLE", Token: "K59Wi9uKXBQmpYGjgd9KIO2tIWxFeBOmFDbTIzLDmVM", Denomination: 18},
	{Name: "LQD", PID: "N0L1lUC-35wgyXK31psEHRjySjQMWPs_vHtTas5BJa8", Token: "n2MhPK0O3yMhrInXDrqOWHqIGnLumyqLCAPEWSh0xSg", Denomination: 18},
	{Name: "GAME", PID: "nYHhoSEtelyL3nQ6_CFoOVnZfnz2VHK-nEez962YMm8", Token: "s6jcB3ctSbiDNwR-paJgy5iOAhahXahLul8exSLHbGE", Denomination: 18},
	{Name: "NAU", PID: "oTkFjTiRUKGp-Lk1YduBDTRRc7j1dM0W_bTgp5Aach8", Token: "5IrQh9aoWTLVyzTavVtkbrt4mLmsjMZJTz8TT6LWdCA", Denomination: 18},
	{Name: "RELLA", PID: "_L_GMvgax750A8oORtNPetcmq5fog3K6WtvY4PFpipo", Token: "aKmI800gM1GkM_rvPvyaYC0nZu6Jw6CWp5WeCb1r6uo", Denomination: 18},
	{Name: "ARIO", PID: "rW7h9J9jE2Xp36y4SKn2HgZaOuzRmbMfBRPwrFFifHE", Token: "qNvAoz0TgcH7DMg8BCVn8jcfSHmOa5nbcSkB_mdgsiA", Denomination: 6},
	{Name: "PIXL", PID: "3eZ6_ry6FD9CB58ImCQs6Qx_rJdDUGhz-D2W1AqzHD8", Token: "DM3FoZUq_yebASPhgd8pEIRIzDW6EXVAvY5HLAJNTHM", Denomination: 6},
	{Name: "VELA", PID: "8TRsYFzbhp97Er5bFJL4Xofa4Txv4fv8S0szEscqopU", Token: "kfq7JKVeu-TMDh6yDTAIpeEOmQ9dRTC9oHR3E6PEbBo", Denomination: 18},
	{Name: "INF", PID: "LnFIQUwAdMZ9LEWlfQ7VZ3zJOW-0p8Irc_2gAVshs3w", Token: "Y2ocP2gBrnzDzg69maAKsrEethTZrPb4VUkXDAqDYCE", Denomination: 18},
}

var byPID = func() map[string]Project {
	m := make(map[string]Project, len(All))
	for _, p := range All {
		m[p.PID] = p
	}
	return m
}()

// ByPID looks up a registered FLP project by its process id.
func ByPID(pid string) (Project, bool) {
	p, ok := byPID[pid]
	return p, ok
}

// IsFLPProject reports whether pid identifies a registered FLP project.
func IsFLPProject(pid string) bool {
	_, ok := byPID[pid]
	return ok
}

// StakingAddress returns the origin-chain staking contract for a ticker.
func StakingAddress(ticker string) (string, bool) {
	switch ticker {
	case "usds":
		return USDSStakingAddress, true
	case "steth":
		return STETHStakingAddress, true
	case "dai":
		return DAIStakingAddress, true
	}
	return "", false
}

// OraclePID returns the oracle process id for a configured ticker.
func OraclePID(ticker string) (string, bool) {
	switch ticker {
	case "usds":
		return USDSOraclePID, true
	case "steth":
		return STETHOraclePID, true
	case "dai":
		return DAIOraclePID, true
	}
	return "", false
}
