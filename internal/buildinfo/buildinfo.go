package buildinfo

// Ces variables sont injectées à la compilation via -ldflags.
// Exemple :
//
//	-X github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo.Version=v0.3.0
//	-X github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/auvio-podcast/internal/buildinfo.Date=2024-03-14
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// Generator est la valeur de <generator> des flux produits.
func Generator() string {
	if Commit == "" {
		return "auvio-podcast " + Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return "auvio-podcast " + Version + " (" + short + ")"
}
