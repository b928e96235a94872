package refdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundlens/internal/models"
)

const nseCSV = `SYMBOL, NAME OF COMPANY, SERIES, DATE OF LISTING, PAID UP VALUE, MARKET LOT, ISIN NUMBER, FACE VALUE
RELIANCE,Reliance Industries Limited,EQ,29-NOV-1995,10,1,INE002A01018,10
TCS,Tata Consultancy Services Limited,EQ,25-AUG-2004,1,1,INE467B01029,1
`

const bseCSV = `101000000001,SBI CARDS AND PAYMENT,,1,0,BSE:SBICARD-A,10,1,SBICARD,INE018E01016
101000000002,SOME OTHER SCRIP,,1,0,BSE:OTHER-A,10,1,OTHER,INE999X01010
`

func refTestServer(t *testing.T, primaryHits, secondaryHits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nse.csv":
			primaryHits.Add(1)
			w.Write([]byte(nseCSV))
		case "/bse.csv":
			secondaryHits.Add(1)
			w.Write([]byte(bseCSV))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestResolver(srv *httptest.Server) *Resolver {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewResolver(log, WithTableURLs(srv.URL+"/nse.csv", srv.URL+"/bse.csv"))
}

func TestResolveSymbol_PrimaryHit(t *testing.T) {
	var p, s atomic.Int32
	srv := refTestServer(t, &p, &s)
	defer srv.Close()

	r := newTestResolver(srv)
	sym, err := r.ResolveSymbol(context.Background(), "INE002A01018")
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", sym)
	assert.Equal(t, int32(0), s.Load(), "secondary table should not be consulted on primary hit")
}

func TestResolveSymbol_SecondaryFallback(t *testing.T) {
	var p, s atomic.Int32
	srv := refTestServer(t, &p, &s)
	defer srv.Close()

	r := newTestResolver(srv)
	sym, err := r.ResolveSymbol(context.Background(), "INE018E01016")
	require.NoError(t, err)
	assert.Equal(t, "BSE:SBICARD-A", sym)
}

func TestResolveSymbol_NotFoundAfterBothMiss(t *testing.T) {
	var p, s atomic.Int32
	srv := refTestServer(t, &p, &s)
	defer srv.Close()

	r := newTestResolver(srv)
	_, err := r.ResolveSymbol(context.Background(), "INE000000000")
	assert.ErrorIs(t, err, models.ErrSymbolNotFound)
}

func TestResolveSymbol_TablesCachedAcrossLookups(t *testing.T) {
	var p, s atomic.Int32
	srv := refTestServer(t, &p, &s)
	defer srv.Close()

	r := newTestResolver(srv)
	for i := 0; i < 3; i++ {
		_, err := r.ResolveSymbol(context.Background(), "INE467B01029")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.Load(), "primary table downloaded once within TTL")
}

func TestResolveSymbol_NormalizesInput(t *testing.T) {
	var p, s atomic.Int32
	srv := refTestServer(t, &p, &s)
	defer srv.Close()

	r := newTestResolver(srv)
	sym, err := r.ResolveSymbol(context.Background(), "  ine467b01029 ")
	require.NoError(t, err)
	assert.Equal(t, "TCS", sym)
}
