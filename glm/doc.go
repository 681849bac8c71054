/*
Package glm fits generalized linear models to columnar data.

Binomial and Gaussian families are supported, with their canonical and
log links.  Models can be fit without penalty (IRLS or gradient
optimization), with ridge (L2) penalties (gradient optimization), or with
lasso (L1) penalties, possibly combined with ridge penalties (coordinate
descent).
*/
package glm
