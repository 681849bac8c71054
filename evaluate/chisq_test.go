package evaluate

import (
	"math"
	"testing"

	"github.com/kshedden/mipool/trial"
)

func TestAssociate(t *testing.T) {

	// group a: 10 failures and 20 successes, group b the reverse
	var g, c, y, age []float64
	for i := 0; i < 60; i++ {
		switch {
		case i < 10:
			g, y = append(g, 0), append(y, 0)
		case i < 30:
			g, y = append(g, 0), append(y, 1)
		case i < 50:
			g, y = append(g, 1), append(y, 0)
		default:
			g, y = append(g, 1), append(y, 1)
		}
		c = append(c, 5)
		age = append(age, float64(20+i))
	}
	g[0] = math.NaN()
	g = append(g, 0)
	y = append(y, 0)
	c = append(c, 5)
	age = append(age, 99)

	tbl, err := trial.NewTable([]string{"y", "group", "site", "age"}, [][]float64{y, g, c, age})
	if err != nil {
		t.Fatal(err)
	}
	for _, na := range []string{"group", "site"} {
		if err := tbl.CastCategorical(na); err != nil {
			t.Fatal(err)
		}
	}

	assoc, err := Associate(tbl, "y")
	if err != nil {
		t.Fatal(err)
	}
	if len(assoc) != 2 || assoc[0].Field != "group" || assoc[1].Field != "site" {
		t.Logf("%+v\n", assoc)
		t.FailNow()
	}

	// Expected counts are all 15
	a := assoc[0]
	if a.N != 60 || a.DF != 1 || math.Abs(a.Stat-20.0/3) > 1e-10 {
		t.Logf("%+v\n", a)
		t.Fail()
	}
	if math.Abs(a.PValue-math.Erfc(math.Sqrt(a.Stat/2))) > 1e-8 {
		t.Logf("p=%v\n", a.PValue)
		t.Fail()
	}

	// A single level carries no information
	b := assoc[1]
	if b.DF != 0 || !math.IsNaN(b.Stat) || !math.IsNaN(b.PValue) || b.N != 61 {
		t.Logf("%+v\n", b)
		t.Fail()
	}

	if _, err := Associate(tbl, "weight"); err == nil {
		t.Fail()
	}
}
