package similarity

// Group maps a canonical note to its known spellings and translations.
type Group struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
}

// DefaultGroups is the curated note table. Lookups scan it in order, so
// when a token belongs to several groups the earlier group wins.
func DefaultGroups() []Group {
	return []Group{
		// citrus
		{"베르가못", []string{"버가못", "bergamot"}},
		{"레몬", []string{"citron", "lemon"}},
		{"라임", []string{"lime"}},
		{"오렌지", []string{"orange", "sweet orange"}},

		// floral
		{"로즈", []string{"장미", "rose"}},
		{"재스민", []string{"jasmine", "자스민"}},
		{"라벤더", []string{"lavender"}},

		// woody
		{"샌달우드", []string{"sandalwood", "샌달"}},
		{"시더우드", []string{"cedarwood", "시더"}},
		{"파츌리", []string{"patchouli"}},

		{"머스크", []string{"화이트 머스크", "musk", "white musk"}},
		{"바닐라", []string{"vanilla"}},
		{"무화과", []string{"무화과 잎", "fig", "fig leaf"}},
		{"베티버", []string{"vetiver", "베티버 루트"}},
		{"앰버", []string{"amber", "앰버그리스"}},
		{"우드 세이지", []string{"wood sage", "sage"}},
		{"해염", []string{"sea salt", "salt"}},
		{"알데하이드", []string{"aldehyde"}},
		{"이리스", []string{"iris", "orris root"}},
		{"타바코", []string{"tobacco", "담배"}},
		{"코코아", []string{"cocoa", "초콜릿"}},
		{"토닉", []string{"tonic"}},
		{"카다멈", []string{"cardamom"}},
		{"바이올렛", []string{"violet"}},
		{"파인", []string{"pine"}},
		{"시가", []string{"cigar"}},
		{"레더", []string{"leather"}},
		{"코코넛", []string{"coconut"}},
		{"우드", []string{"wood"}},
		{"앰브록스", []string{"ambroxan", "ambrox"}},
		{"럼", []string{"rum"}},
		{"해양 노트", []string{"marine", "ocean", "aquatic"}},
		{"로즈마리", []string{"rosemary"}},
	}
}
