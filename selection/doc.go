/*
Package selection fits cross-validated penalized logistic regression
models for variable selection.

CVLasso fits the Lasso over a decreasing penalty path with warm starts,
and CVBestSubset fits L0L2 penalized best subset regressions over a grid
of ridge penalties.  Both score candidate penalties by the mean held-out
binomial deviance over caller-supplied fold ids, so that different
models fit to the same rows can share one fold assignment.

Covariates are standardized internally, and coefficients are always
reported on the original covariate scale.  Columns that are not
selected have coefficients that are exactly zero.
*/
package selection
