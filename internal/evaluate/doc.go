// Package evaluate runs labelled queries through the classifier and reports
// accuracy, per-class precision/recall/F1 and a confusion matrix.
package evaluate
