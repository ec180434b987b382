package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TrendBasis returns the n×k design matrix used for detrending and for the
// drift fit: a constant, a centred linear term and a centred quadratic term.
// k is min(n, 3) so short series keep a full-rank basis.
func TrendBasis(n int) *mat.Dense {
	k := n
	if k > 3 {
		k = 3
	}
	if n == 0 {
		return nil
	}

	var meanT, meanT2 float64
	for i := 0; i < n; i++ {
		meanT += float64(i)
		meanT2 += float64(i * i)
	}
	meanT /= float64(n)
	meanT2 /= float64(n)

	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		row := []float64{1, float64(i) - meanT, float64(i*i) - meanT2}
		for j := 0; j < k; j++ {
			x.Set(i, j, row[j])
		}
	}
	return x
}

// Detrend removes the TrendBasis fit from every column of y at once and
// returns the residuals. Each column is a separate time series.
func Detrend(y mat.Matrix) (*mat.Dense, error) {
	n, _ := y.Dims()
	x := TrendBasis(n)
	if x == nil {
		return nil, errors.New("cannot detrend an empty series")
	}

	coef, err := solveBasis(x, y)
	if err != nil {
		return nil, err
	}

	var fitted, resid mat.Dense
	fitted.Mul(x, coef)
	resid.Sub(y, &fitted)
	return &resid, nil
}

// solveBasis computes the least-squares coefficients of y against x through a
// single QR factorisation shared by all columns of y.
func solveBasis(x *mat.Dense, y mat.Matrix) (*mat.Dense, error) {
	var qr mat.QR
	qr.Factorize(x)

	var coef mat.Dense
	if err := qr.SolveTo(&coef, false, y); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("trend solve failed: %w", err)
		}
		// An ill-conditioned basis still yields the least-squares solution.
	}
	return &coef, nil
}

// TrendFit is an ordinary least-squares fit of a series on TrendBasis.
// Params[1] is the linear drift term.
type TrendFit struct {
	Params  []float64
	StdErr  []float64
	TValues []float64
	PValues []float64

	// DF is the residual degrees of freedom
	DF int

	// Fitted holds the modelled trend, one value per timepoint
	Fitted []float64
}

// Drift returns the linear coefficient and its two-sided p value
func (f *TrendFit) Drift() (coef, p float64) {
	if f == nil || len(f.Params) < 2 {
		return math.NaN(), math.NaN()
	}
	return f.Params[1], f.PValues[1]
}

// FitTrend fits the quadratic trend model to data
func FitTrend(data []float64) (*TrendFit, error) {
	n := len(data)
	x := TrendBasis(n)
	if x == nil {
		return nil, errors.New("cannot fit a trend to an empty series")
	}
	_, k := x.Dims()

	y := mat.NewDense(n, 1, append([]float64(nil), data...))
	coef, err := solveBasis(x, y)
	if err != nil {
		return nil, err
	}

	var fitted mat.Dense
	fitted.Mul(x, coef)

	fit := &TrendFit{
		Params:  mat.Col(nil, 0, coef),
		StdErr:  make([]float64, k),
		TValues: make([]float64, k),
		PValues: make([]float64, k),
		DF:      n - k,
		Fitted:  mat.Col(nil, 0, &fitted),
	}

	if fit.DF <= 0 {
		for j := 0; j < k; j++ {
			fit.StdErr[j], fit.TValues[j], fit.PValues[j] = math.NaN(), math.NaN(), math.NaN()
		}
		return fit, nil
	}

	var sse float64
	for i := 0; i < n; i++ {
		r := data[i] - fit.Fitted[i]
		sse += r * r
	}
	sigma2 := sse / float64(fit.DF)

	var xtx, xtxInv mat.Dense
	xtx.Mul(x.T(), x)
	if err := xtxInv.Inverse(&xtx); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("trend covariance failed: %w", err)
		}
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(fit.DF)}
	for j := 0; j < k; j++ {
		fit.StdErr[j] = math.Sqrt(sigma2 * xtxInv.At(j, j))
		fit.TValues[j] = fit.Params[j] / fit.StdErr[j]
		fit.PValues[j] = 2 * tdist.Survival(math.Abs(fit.TValues[j]))
	}

	return fit, nil
}
