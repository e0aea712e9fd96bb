package status

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// GetLatestRun returns the outcome of the most recent run
func (c *Controller) GetLatestRun(w http.ResponseWriter, req *http.Request) {
	latest := c.store.Latest()
	if latest == nil {
		c.writeError(w, req, http.StatusNotFound, "no run has finished yet")
		return
	}
	c.write(w, req, http.StatusOK, latest)
}

// GetDay returns the last known summary of a day, given as YYYY-MM-DD or YYYYMMDD
func (c *Controller) GetDay(w http.ResponseWriter, req *http.Request) {
	raw := mux.Vars(req)["date"]

	var date time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if date, err = time.Parse(layout, raw); err == nil {
			break
		}
	}
	if err != nil {
		c.writeError(w, req, http.StatusBadRequest, "invalid date: "+raw)
		return
	}

	day, ok := c.store.Day(date.Format("2006-01-02"))
	if !ok {
		c.writeError(w, req, http.StatusNotFound, "no summary for "+date.Format("2006-01-02"))
		return
	}
	c.write(w, req, http.StatusOK, day)
}

// GetHealth reports the health of every output sink
func (c *Controller) GetHealth(w http.ResponseWriter, req *http.Request) {
	health := c.health(req.Context())

	status := http.StatusOK
	for _, h := range health {
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
	}
	c.write(w, req, status, health)
}

func (c *Controller) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := c.formatter.WriteResponse(w, req, status, data); err != nil {
		c.logger.Errorf("error writing response: %v", err)
	}
}

func (c *Controller) writeError(w http.ResponseWriter, req *http.Request, status int, message string) {
	if err := c.formatter.WriteError(w, req, status, message); err != nil {
		c.logger.Errorf("error writing response: %v", err)
	}
}
