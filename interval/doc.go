/*Package interval loads named genomic intervals from BED files and indexes
  them per chromosome.  Intervals are 0-based and half-open.  Two interval
  sets can be paired by name, e.g. sequin regions on a decoy chromosome
  with the sample regions they mimic.
*/
package interval
