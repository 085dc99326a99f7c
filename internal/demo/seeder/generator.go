package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Generator produces a deterministic synthetic patient dataset as CSV text.
// The embedding column exercises vector inference and the HNSW index path.
type Generator struct {
	rnd          *rand.Rand
	embeddingDim int
	now          func() time.Time
}

func NewGenerator(seed int64, embeddingDim int) *Generator {
	return &Generator{
		rnd:          rand.New(rand.NewSource(seed)),
		embeddingDim: embeddingDim,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var (
	firstNames = []string{"Alice", "Bruno", "Chiara", "Davide", "Elena", "Franco", "Giulia", "Hamid", "Irene", "Luca", "Marta", "Nadia", "Omar", "Paola", "Rosa", "Sara", "Tommaso", "Vera"}
	lastNames  = []string{"Rossi", "Bianchi", "Ferrari", "Russo", "Romano", "Colombo", "Ricci", "Marino", "Greco", "Conti", "Esposito", "Moretti"}
	wards      = []string{"Cardiology", "Oncology", "Neurology", "Orthopedics", "Pediatrics", "Radiology"}
)

// CSV renders count patient rows with a header.
func (g *Generator) CSV(count int) string {
	var b strings.Builder
	b.WriteString("ID,Name,Age,Ward,AdmittedAt,Notes,Embedding\n")
	for i := 1; i <= count; i++ {
		name := pickOne(g.rnd, firstNames) + " " + pickOne(g.rnd, lastNames)
		age := 18 + g.rnd.Intn(80)
		ward := pickOne(g.rnd, wards)
		admitted := g.now().AddDate(0, 0, -g.rnd.Intn(365)).Format("2006-01-02 15:04:05")
		notes := fmt.Sprintf("Admitted to %s for observation", strings.ToLower(ward))
		fmt.Fprintf(&b, "%d,%s,%d,%s,%s,%s,\"%s\"\n",
			i, name, age, ward, admitted, notes, g.embedding())
	}
	return b.String()
}

func (g *Generator) embedding() string {
	values := make([]string, g.embeddingDim)
	for i := range values {
		values[i] = fmt.Sprintf("%.4f", round4(g.rnd.Float64()*2-1))
	}
	return "[" + strings.Join(values, ",") + "]"
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
