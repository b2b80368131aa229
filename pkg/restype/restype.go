package restype

// ResType is the 16-bit tag identifying a resource's kind. Each known
// type maps to a file extension and back.
type ResType uint16

// Known resource types. The numbering is the engine's own; gaps are
// types this library has no reader for but still names.
const (
	Res ResType = 0
	Bmp ResType = 1
	Tga ResType = 3
	Wav ResType = 4
	Plt ResType = 6
	Ini ResType = 7
	Txt ResType = 10

	Mdl   ResType = 2002
	Nss   ResType = 2009
	Ncs   ResType = 2010
	Mod   ResType = 2011
	Are   ResType = 2012
	Set   ResType = 2013
	Ifo   ResType = 2014
	Bic   ResType = 2015
	Wok   ResType = 2016
	TwoDA ResType = 2017
	Tlk   ResType = 2018
	Txi   ResType = 2022
	Git   ResType = 2023
	Uti   ResType = 2025
	Utc   ResType = 2027
	Dlg   ResType = 2029
	Itp   ResType = 2030
	Utt   ResType = 2032
	Dds   ResType = 2033
	Uts   ResType = 2035
	Ltr   ResType = 2036
	Gff   ResType = 2037
	Fac   ResType = 2038
	Ute   ResType = 2040
	Utd   ResType = 2042
	Utp   ResType = 2044
	Dft   ResType = 2045
	Gic   ResType = 2046
	Gui   ResType = 2047
	Utm   ResType = 2051
	Dwk   ResType = 2052
	Pwk   ResType = 2053
	Jrl   ResType = 2056
	Sav   ResType = 2057
	Utw   ResType = 2058
	Ssf   ResType = 2060
	Hak   ResType = 2061
	Nwm   ResType = 2062
	Ndb   ResType = 2064
	Ptm   ResType = 2065
	Ptt   ResType = 2066

	Sef ResType = 3006
	Pfx ResType = 3007
	Cam ResType = 3008
	Upe ResType = 3011
	Ros ResType = 3012
	Rst ResType = 3013
	Zip ResType = 3016
	Wmp ResType = 3017
	Trx ResType = 3035

	Erf ResType = 9997
	Bif ResType = 9998
	Key ResType = 9999

	// Invalid is the sentinel for unknown extensions.
	Invalid ResType = 0xFFFF
)

// typeExts is the authoritative type→extension table. Extensions are
// lowercase, at most 3 characters for classic types and up to 7 for
// extended ones.
var typeExts = map[ResType]string{
	Res:   "res",
	Bmp:   "bmp",
	Tga:   "tga",
	Wav:   "wav",
	Plt:   "plt",
	Ini:   "ini",
	Txt:   "txt",
	Mdl:   "mdl",
	Nss:   "nss",
	Ncs:   "ncs",
	Mod:   "mod",
	Are:   "are",
	Set:   "set",
	Ifo:   "ifo",
	Bic:   "bic",
	Wok:   "wok",
	TwoDA: "2da",
	Tlk:   "tlk",
	Txi:   "txi",
	Git:   "git",
	Uti:   "uti",
	Utc:   "utc",
	Dlg:   "dlg",
	Itp:   "itp",
	Utt:   "utt",
	Dds:   "dds",
	Uts:   "uts",
	Ltr:   "ltr",
	Gff:   "gff",
	Fac:   "fac",
	Ute:   "ute",
	Utd:   "utd",
	Utp:   "utp",
	Dft:   "dft",
	Gic:   "gic",
	Gui:   "gui",
	Utm:   "utm",
	Dwk:   "dwk",
	Pwk:   "pwk",
	Jrl:   "jrl",
	Sav:   "sav",
	Utw:   "utw",
	Ssf:   "ssf",
	Hak:   "hak",
	Nwm:   "nwm",
	Ndb:   "ndb",
	Ptm:   "ptm",
	Ptt:   "ptt",
	Sef:   "sef",
	Pfx:   "pfx",
	Cam:   "cam",
	Upe:   "upe",
	Ros:   "ros",
	Rst:   "rst",
	Zip:   "zip",
	Wmp:   "wmp",
	Trx:   "trx",
	Erf:   "erf",
	Bif:   "bif",
	Key:   "key",
}

var extTypes = func() map[string]ResType {
	m := make(map[string]ResType, len(typeExts))
	for t, ext := range typeExts {
		m[ext] = t
	}
	return m
}()

// ResTypeToExt returns the file extension for t, without the dot.
// Unknown types return ("", false).
func ResTypeToExt(t ResType) (string, bool) {
	ext, ok := typeExts[t]
	return ext, ok
}

// ExtToResType returns the type for a file extension (case-insensitive,
// with or without a leading dot). Unknown extensions return Invalid.
func ExtToResType(ext string) ResType {
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	b := []byte(ext)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	if t, ok := extTypes[string(b)]; ok {
		return t
	}
	return Invalid
}

// String returns the extension for known types, or "invalid".
func (t ResType) String() string {
	if ext, ok := typeExts[t]; ok {
		return ext
	}
	return "invalid"
}

// IsGff reports whether t is one of the tagged-structure (GFF family)
// types.
func (t ResType) IsGff() bool {
	switch t {
	case Mod, Are, Ifo, Bic, Git, Uti, Utc, Dlg, Itp, Utt, Uts, Gff,
		Fac, Ute, Utd, Utp, Gic, Gui, Utm, Jrl, Utw, Ptm, Ptt:
		return true
	}
	return false
}
