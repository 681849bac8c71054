package selection

import (
	"go.uber.org/zap"

	"github.com/kshedden/mipool/design"
	"github.com/kshedden/mipool/glm"
)

// Refit fits an unpenalized logistic regression of x.Y on an intercept
// and the named columns of x, giving conventional standard errors for
// a selected support.  The fit uses IRLS on the original scale of the
// covariates.
func Refit(x *design.Matrix, support []string, logger *zap.Logger) (*glm.Results, error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	ds, err := x.Dataset(append([]string{}, support...))
	if err != nil {
		return nil, err
	}

	gc := glm.DefaultConfig()
	gc.Family = glm.NewFamily(glm.BinomialFamily)
	gc.Log = logger

	model, err := glm.NewGLM(ds, x.Outcome, append([]string{design.Intercept}, support...), gc)
	if err != nil {
		return nil, err
	}
	rslt, err := model.Fit()
	if err != nil {
		return nil, err
	}
	if !rslt.Converged() {
		logger.Warn("refit did not converge", zap.Strings("support", support))
	}

	return rslt, nil
}
