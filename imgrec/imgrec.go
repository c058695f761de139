// Package imgrec contains an image recorder used to automatically save
// frames to disk as FITS files.
package imgrec

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/flicam/fli"
)

// Recorder records image sequences with incrementing filenames in
// yyyy-mm-dd subfolders.  It is not thread safe.
type Recorder struct {
	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled is a flag unused by this struct that allows consumers to
	// disable its use in their code
	Enabled bool
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	now := time.Now()
	y, m, d := now.Year(), now.Month(), now.Day()
	r.timeFldr = fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := path.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Write implements io.Writer and writes the contents of a fits file to disk
func (r *Recorder) Write(p []byte) (n int, err error) {
	// make sure the folder exists
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return 0, err
	}

	// now open the file and write to it
	fn := fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter)
	fn = path.Join(fldr, fn)
	var fid *os.File
	fid, err = os.OpenFile(fn, os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil && os.IsNotExist(err) {
		fid, err = os.Create(fn)
		if err != nil {
			return 0, err
		}
	}
	defer fid.Close()
	if err != nil {
		return 0, err
	}
	return fid.Write(p)
}

// Record streams a frame into the recorder as a FITS file and advances the
// filename counter.
func (r *Recorder) Record(f *fli.Frame) error {
	if err := f.WriteFits(r); err != nil {
		return err
	}
	r.Incr()
	return nil
}

// Incr updates the filename counter; it scans the folder to do so.  If
// there is an error, the counter is not incremented
func (r *Recorder) Incr() {
	dn, _ := r.mkDir()
	files, err := ioutil.ReadDir(dn)
	if err != nil {
		return
	}
	count := 0
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		// guaranteed match
		bit := strings.Split(fn, r.Prefix)[1]
		bit = bit[:len(bit)-5] // pop fits
		n, err := strconv.Atoi(bit)
		if err != nil {
			return
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}
